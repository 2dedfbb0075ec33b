package domain

import (
	"context"
	"errors"
)

// ResponseFormat selects the shape the model is asked to answer in.
type ResponseFormat string

const (
	ResponseFormatText       ResponseFormat = "text"
	ResponseFormatJSONObject ResponseFormat = "json_object"
)

// ModelCaller is the boundary to a hosted language model. Implementations
// return the raw assistant text for the given history.
type ModelCaller interface {
	Generate(ctx context.Context, history []Message, format ResponseFormat) (string, error)
}

// ModelCallerFunc adapts a function to ModelCaller.
type ModelCallerFunc func(ctx context.Context, history []Message, format ResponseFormat) (string, error)

func (f ModelCallerFunc) Generate(ctx context.Context, history []Message, format ResponseFormat) (string, error) {
	return f(ctx, history, format)
}

var (
	ErrModelCall    = errors.New("model call failed")
	ErrModelTimeout = errors.New("model call timed out")
	ErrMaxSteps     = errors.New("max steps reached without output")
)
