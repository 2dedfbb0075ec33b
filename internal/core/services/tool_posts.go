package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/abhishekraut01/Gen-AI/internal/core/domain"
	"github.com/abhishekraut01/Gen-AI/internal/core/ports"
)

// Post styles accepted by optimize_twitter_post.
var postStyles = []string{"professional", "casual", "motivational", "educational"}

type createPostInput struct {
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags"`
}

type optimizePostInput struct {
	Content string `json:"content"`
	Style   string `json:"style"`
}

// RegisterPostTools adds the post tools backed by repo to reg.
func RegisterPostTools(reg *domain.ToolRegistry, repo ports.PostRepository) error {
	for _, tool := range NewPostTools(repo) {
		if err := reg.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

// NewPostTools builds create_twitter_post, list_twitter_posts and optimize_twitter_post.
func NewPostTools(repo ports.PostRepository) []*domain.Tool {
	return []*domain.Tool{
		newCreatePostTool(repo),
		newListPostsTool(repo),
		newOptimizePostTool(),
	}
}

func newCreatePostTool(repo ports.PostRepository) *domain.Tool {
	schema := openapi3.NewObjectSchema().
		WithProperty("content", openapi3.NewStringSchema()).
		WithProperty("hashtags", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
	schema.Required = []string{"content"}
	schema.Properties["content"].Value.Description = fmt.Sprintf("The main content of the post (max %d characters)", domain.MaxPostLength)
	schema.Properties["hashtags"].Value.Description = "Hashtags for the post, without the # symbol"

	// Creating is not retry-safe: each call appends a new post.
	return domain.NewTool("create_twitter_post", "Create a Twitter post with content and hashtags", schema,
		func(ctx context.Context, in createPostInput) (string, error) {
			post, err := domain.NewPost(in.Content, in.Hashtags)
			if err != nil {
				return "", err
			}
			if err := repo.AppendPost(ctx, post); err != nil {
				return "", fmt.Errorf("store post: %w", err)
			}

			formatted := post.Format("\n\n")
			return fmt.Sprintf("Twitter post created successfully!\n\nPost ID: %s\n\n%s\n\nCharacter count: %d/%d",
				post.ID, formatted, utf8.RuneCountInString(formatted), domain.MaxPostLength), nil
		})
}

func newListPostsTool(repo ports.PostRepository) *domain.Tool {
	tool := domain.NewTool("list_twitter_posts", "List all created Twitter posts", openapi3.NewObjectSchema(),
		func(ctx context.Context, _ struct{}) (string, error) {
			posts, err := repo.ListPosts(ctx)
			if err != nil {
				return "", fmt.Errorf("list posts: %w", err)
			}
			if len(posts) == 0 {
				return "No Twitter posts have been created yet.", nil
			}

			entries := make([]string, len(posts))
			for i, p := range posts {
				entries[i] = fmt.Sprintf("%d. [%s]\n%s\n", i+1, p.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"), p.Format("\n"))
			}
			return fmt.Sprintf("All Twitter Posts (%d):\n\n%s", len(posts), strings.Join(entries, "\n---\n")), nil
		})
	tool.RetrySafe = true
	return tool
}

var (
	hasDigit       = regexp.MustCompile(`\d`)
	hasExclamation = regexp.MustCompile(`[!?]`)
)

func newOptimizePostTool() *domain.Tool {
	styleEnum := make([]any, len(postStyles))
	for i, s := range postStyles {
		styleEnum[i] = s
	}
	schema := openapi3.NewObjectSchema().
		WithProperty("content", openapi3.NewStringSchema()).
		WithProperty("style", openapi3.NewStringSchema().WithEnum(styleEnum...))
	schema.Required = []string{"content"}
	schema.Properties["style"].Value.Description = "The style of the post"

	tool := domain.NewTool("optimize_twitter_post", "Optimize a Twitter post for engagement", schema,
		func(_ context.Context, in optimizePostInput) (string, error) {
			optimized, suggestions := optimizePost(in.Content, in.Style)
			bullets := make([]string, len(suggestions))
			for i, s := range suggestions {
				bullets[i] = "• " + s
			}
			return fmt.Sprintf("Optimized Twitter Post:\n\n%s\n\nSuggestions:\n%s\n\nCharacter count: %d/%d",
				optimized, strings.Join(bullets, "\n"), utf8.RuneCountInString(optimized), domain.MaxPostLength), nil
		})
	tool.RetrySafe = true
	return tool
}

// optimizePost applies style rules to content and returns the rewritten text
// with the suggestions that were made.
func optimizePost(content, style string) (string, []string) {
	if style == "" {
		style = "professional"
	}
	optimized := content
	var suggestions []string

	switch style {
	case "motivational":
		if !strings.ContainsAny(content, "💪🚀✨") {
			suggestions = append(suggestions, "Add emojis for emotional impact")
			optimized = "💪 " + content + " 🚀"
		}
		if !hasExclamation.MatchString(content) {
			suggestions = append(suggestions, "Add exclamation for energy")
			if strings.HasSuffix(optimized, ".") {
				optimized = strings.TrimSuffix(optimized, ".") + "!"
			}
		}
	case "professional":
		suggestions = append(suggestions, "Keep tone formal and data-driven")
	case "casual":
		suggestions = append(suggestions, "Use conversational tone")
	case "educational":
		if !strings.Contains(content, "🧵") {
			suggestions = append(suggestions, "Consider thread format for complex topics")
			optimized = "🧵 " + content
		}
	}

	if utf8.RuneCountInString(content) < 100 {
		suggestions = append(suggestions, "Consider expanding content for better engagement")
	}
	if !hasDigit.MatchString(content) {
		suggestions = append(suggestions, "Consider adding specific numbers/statistics")
	}
	return optimized, suggestions
}
