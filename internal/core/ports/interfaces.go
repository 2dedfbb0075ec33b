package ports

import (
	"context"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
)

// PostRepository abstracts the append-only post collection (memory or DuckDB).
type PostRepository interface {
	// AppendPost stores a new post at the end of the collection.
	// Implementations serialise concurrent appends.
	AppendPost(ctx context.Context, post domain.Post) error

	// ListPosts returns every post in append order.
	ListPosts(ctx context.Context) ([]domain.Post, error)

	// CountPosts returns the number of stored posts.
	CountPosts(ctx context.Context) (int, error)
}

// CommandOutput is the captured result of one command run.
type CommandOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner executes a shell command line (host process or container).
type CommandRunner interface {
	// Run executes command with /bin/sh -c semantics. A non-zero exit code is
	// reported in CommandOutput, not as an error.
	Run(ctx context.Context, command string) (CommandOutput, error)
}
