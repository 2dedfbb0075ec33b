package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxPostLength is the character limit of a post.
const MaxPostLength = 280

// PostID uniquely identifies a post
type PostID string

// Post is an immutable short-form post created by the create tool.
type Post struct {
	ID        PostID    `json:"id"`
	Content   string    `json:"content"`
	Hashtags  []string  `json:"hashtags"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostLengthError reports content over MaxPostLength.
type PostLengthError struct {
	Length int
}

func (e *PostLengthError) Error() string {
	return fmt.Sprintf("Error: Post exceeds %d characters (current: %d). Please shorten the content.", MaxPostLength, e.Length)
}

// NewPost validates content and builds a post with a fresh ID.
// Length is counted in characters, not bytes.
func NewPost(content string, hashtags []string) (Post, error) {
	if n := utf8.RuneCountInString(content); n > MaxPostLength {
		return Post{}, &PostLengthError{Length: n}
	}
	tags := make([]string, 0, len(hashtags))
	for _, tag := range hashtags {
		tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return Post{
		ID:        PostID(uuid.NewString()),
		Content:   content,
		Hashtags:  tags,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Format renders the post body followed by its hashtags.
func (p Post) Format(sep string) string {
	tags := make([]string, len(p.Hashtags))
	for i, t := range p.Hashtags {
		tags[i] = "#" + t
	}
	return p.Content + sep + strings.Join(tags, " ")
}
