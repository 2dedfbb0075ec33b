package duckdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
	"github.com/abhishekraut01/Gen-AI/internal/core/ports"
)

const schema = `
CREATE SEQUENCE IF NOT EXISTS post_seq START 1;
CREATE TABLE IF NOT EXISTS posts (
	seq        BIGINT PRIMARY KEY DEFAULT nextval('post_seq'),
	id         VARCHAR NOT NULL UNIQUE,
	content    VARCHAR NOT NULL,
	hashtags   VARCHAR NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// PostRepository stores posts in DuckDB. An empty DSN opens an in-memory database.
type PostRepository struct {
	db *sql.DB
	// mu keeps appends in a single order across sessions.
	mu sync.Mutex
}

// Ensure PostRepository implements the port
var _ ports.PostRepository = (*PostRepository)(nil)

// NewPostRepository opens dsn and creates the schema.
func NewPostRepository(ctx context.Context, dsn string) (*PostRepository, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	// A single connection keeps an in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostRepository{db: db}, nil
}

func (r *PostRepository) Close() error {
	return r.db.Close()
}

func (r *PostRepository) AppendPost(ctx context.Context, post domain.Post) error {
	tags, err := json.Marshal(post.Hashtags)
	if err != nil {
		return fmt.Errorf("encode hashtags: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO posts (id, content, hashtags, created_at) VALUES (?, ?, ?, ?)`,
		string(post.ID), post.Content, string(tags), post.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (r *PostRepository) ListPosts(ctx context.Context) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, content, hashtags, created_at FROM posts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var (
			p    domain.Post
			id   string
			tags string
		)
		if err := rows.Scan(&id, &p.Content, &tags, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.ID = domain.PostID(id)
		if err := json.Unmarshal([]byte(tags), &p.Hashtags); err != nil {
			return nil, fmt.Errorf("decode hashtags of %s: %w", id, err)
		}
		p.CreatedAt = p.CreatedAt.UTC()
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (r *PostRepository) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM posts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}
