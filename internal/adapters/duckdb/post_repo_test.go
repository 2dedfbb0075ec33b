package duckdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

func TestPostRepository_AppendAndList(t *testing.T) {
	ctx := t.Context()
	repo, err := NewPostRepository(ctx, "")
	require.NoError(t, err)
	defer repo.Close()

	n, err := repo.CountPosts(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var created []domain.Post
	for i := range 3 {
		p, err := domain.NewPost(fmt.Sprintf("post %d", i), []string{"go", fmt.Sprintf("n%d", i)})
		require.NoError(t, err)
		require.NoError(t, repo.AppendPost(ctx, p))
		created = append(created, p)
	}

	posts, err := repo.ListPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	for i, p := range posts {
		assert.Equal(t, created[i].ID, p.ID)
		assert.Equal(t, created[i].Content, p.Content)
		assert.Equal(t, created[i].Hashtags, p.Hashtags)
		assert.WithinDuration(t, created[i].CreatedAt, p.CreatedAt, time.Microsecond)
	}

	n, err = repo.CountPosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPostRepository_DuplicateID(t *testing.T) {
	ctx := t.Context()
	repo, err := NewPostRepository(ctx, "")
	require.NoError(t, err)
	defer repo.Close()

	p, err := domain.NewPost("once", nil)
	require.NoError(t, err)
	require.NoError(t, repo.AppendPost(ctx, p))
	assert.Error(t, repo.AppendPost(ctx, p))
}
