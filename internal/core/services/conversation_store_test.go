package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

func TestConversationManager_Lifecycle(t *testing.T) {
	model := new(MockModel)
	model.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"step":"output","content":"hello there"}`, nil)

	reg := domain.NewToolRegistry()
	require.NoError(t, reg.Register(NewWeatherTool(WeatherConfig{})))
	m := NewConversationManager(testLogger(), model, reg, NewEventBus(testLogger()), LoopConfig{}, 0)

	conv := m.Create()
	assert.Contains(t, string(conv.ID), "conv-")

	res, err := m.Submit(t.Context(), conv.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Output)

	got, history, err := m.Get(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Title)
	require.Len(t, history, 3)
	assert.Contains(t, history[0].Content, "fetchWeather", "system prompt lists registered tools")

	assert.Len(t, m.List(), 1)

	require.NoError(t, m.Delete(conv.ID))
	_, _, err = m.Get(conv.ID)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	assert.ErrorIs(t, m.Delete(conv.ID), domain.ErrConversationNotFound)
}

func TestConversationManager_UnknownConversation(t *testing.T) {
	m := NewConversationManager(testLogger(), new(MockModel), domain.NewToolRegistry(), nil, LoopConfig{}, 0)

	_, err := m.Submit(t.Context(), "conv-missing", "hi")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestConversationManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewConversationManager(testLogger(), new(MockModel), domain.NewToolRegistry(), nil, LoopConfig{}, 2)

	a := m.Create()
	b := m.Create()
	_, _, err := m.Get(a.ID) // a becomes most recent
	require.NoError(t, err)
	c := m.Create()

	_, _, err = m.Get(b.ID)
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	_, _, err = m.Get(a.ID)
	assert.NoError(t, err)
	_, _, err = m.Get(c.ID)
	assert.NoError(t, err)
}
