package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/hanlog/hanlog/internal/config"
)

const (
	defaultEmbeddingModelName = "text-embedding-004"
	defaultTextModelName      = "gemini-1.5-flash-latest"

	summarySystemInstruction = "You are an editorial assistant for a personal blog. " +
		"Write a summary of the given post in 2-3 sentences, in the same language as the post. " +
		"Just return the summary itself, nothing else."

	slugSystemInstruction = "You are an assistant that generates URL slugs for blog posts. " +
		"Return a short lowercase slug in English using hyphens between words, 3-6 words maximum. " +
		"Just return the slug itself, nothing else."

	translateSystemInstruction = "You are a translator for a personal blog. " +
		"Translate the given text into the requested language, preserving Markdown formatting. " +
		"Just return the translation itself, nothing else."

	providerMaxAttempts = 3
	providerBaseDelay   = 1000 * time.Millisecond
)

// LLMService wraps the Gemini client for embedding generation and the
// admin-side text helpers (summary, slug, translation). Every remote call
// goes through the same retry wrapper.
type LLMService struct {
	client    *genai.Client
	baseDelay time.Duration
}

func NewLLMService(cfg config.Config) *LLMService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	return &LLMService{
		client:    client,
		baseDelay: providerBaseDelay,
	}
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

// GetPostEmbedding embeds a post's text as a single document: title first,
// separated from the content by a blank line. Transient failures and empty
// responses are retried with exponential backoff; the last error is returned
// once attempts are exhausted.
func (s *LLMService) GetPostEmbedding(ctx context.Context, title, content string) ([]float32, error) {
	text := title + "\n\n" + content

	return withRetry(ctx, providerMaxAttempts, s.baseDelay, func() ([]float32, error) {
		em := s.client.EmbeddingModel(defaultEmbeddingModelName)
		res, err := em.EmbedContent(ctx, genai.Text(text))
		if err != nil {
			return nil, fmt.Errorf("gemini embedding request failed: %w", err)
		}

		if res.Embedding == nil || len(res.Embedding.Values) == 0 {
			return nil, fmt.Errorf("no embedding data received from gemini")
		}
		return res.Embedding.Values, nil
	})
}

// GenerateSummary produces a short summary of a post for the admin editor.
func (s *LLMService) GenerateSummary(ctx context.Context, title, content string) (string, error) {
	prompt := fmt.Sprintf("Summarize this blog post.\n\nTitle: %s\n\n%s", title, content)
	return s.generateText(ctx, summarySystemInstruction, prompt, 256, 0.3)
}

// SuggestSlug proposes a URL slug for a post title.
func (s *LLMService) SuggestSlug(ctx context.Context, title string) (string, error) {
	prompt := fmt.Sprintf("Generate a URL slug for a blog post titled: \"%s\"", title)
	slug, err := s.generateText(ctx, slugSystemInstruction, prompt, 20, 0.3)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.ToLower(slug), "\"'\n\r\t /."), nil
}

// Translate translates post text into the target locale.
func (s *LLMService) Translate(ctx context.Context, text, targetLocale string) (string, error) {
	prompt := fmt.Sprintf("Translate the following text into %q:\n\n%s", targetLocale, text)
	return s.generateText(ctx, translateSystemInstruction, prompt, 8192, 0.3)
}

func (s *LLMService) generateText(ctx context.Context, systemInstruction, prompt string, maxTokens int32, temperature float32) (string, error) {
	model := s.client.GenerativeModel(defaultTextModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temperature,
	}

	return withRetry(ctx, providerMaxAttempts, s.baseDelay, func() (string, error) {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", fmt.Errorf("gemini generation request failed: %w", err)
		}

		if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("empty response from gemini")
		}

		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				text.WriteString(string(txt))
			} else {
				log.Printf("Gemini response part was not text: %T", part)
			}
		}

		if text.Len() == 0 {
			return "", fmt.Errorf("gemini response contained no text parts")
		}
		return strings.TrimSpace(text.String()), nil
	})
}
