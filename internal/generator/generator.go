// Package generator produces a short reply for a candidate post through a
// remote text-generation service. One attempt per candidate, no retries.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/config"
	"github.com/dlps55195/x-bot-worker/internal/logging"
	"github.com/dlps55195/x-bot-worker/internal/types"

	"go.uber.org/zap"
)

// ErrGeneration wraps every failure to obtain a usable reply.
var ErrGeneration = errors.New("reply generation failed")

// DefaultTimeout bounds one generation call.
const DefaultTimeout = 30 * time.Second

// Generator turns a candidate into reply text.
type Generator interface {
	Generate(ctx context.Context, c types.Candidate) (string, error)
}

// Completer sends a single prompt to a provider and returns its raw text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// Service renders the prompt, applies the timeout and normalizes the result.
type Service struct {
	completer Completer
	timeout   time.Duration
}

// NewService wraps a completer. A non-positive timeout uses DefaultTimeout.
func NewService(c Completer, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{completer: c, timeout: timeout}
}

// New builds the configured provider.
func New(cfg *config.Config) (*Service, error) {
	var (
		c   Completer
		err error
	)
	switch cfg.Generation.Provider {
	case "openrouter":
		c = NewOpenRouterClient(OpenRouterConfig{
			APIKey:  cfg.Generation.APIKey,
			BaseURL: cfg.Generation.BaseURL,
			Model:   cfg.Generation.Model,
		})
	case "gemini":
		c, err = NewGeminiClient(context.Background(), GeminiConfig{
			APIKey:  cfg.Generation.APIKey,
			Model:   cfg.Generation.Model,
			BaseURL: geminiBaseURL(cfg.Generation.BaseURL),
		})
	default:
		err = fmt.Errorf("unknown generation provider %q", cfg.Generation.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewService(c, cfg.GetGenerationTimeout()), nil
}

// The OpenRouter default base URL is meaningless to the Gemini SDK.
func geminiBaseURL(u string) string {
	if strings.Contains(u, "openrouter.ai") {
		return ""
	}
	return u
}

// Generate returns the normalized reply, or an error wrapping ErrGeneration.
func (s *Service) Generate(ctx context.Context, c types.Candidate) (string, error) {
	log := logging.Get(logging.CategoryGenerate).With(
		zap.String("provider", s.completer.Name()),
		zap.String("post_id", c.PostID))
	timer := logging.StartTimer(logging.CategoryGenerate, "generate")
	defer timer.Stop()

	prompt, err := BuildPrompt(c)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		log.Warn("generation call failed", zap.Error(err))
		if errors.Is(err, ErrGeneration) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	reply := Normalize(raw)
	if reply == "" {
		log.Warn("generation returned empty reply")
		return "", fmt.Errorf("%w: empty reply", ErrGeneration)
	}
	log.Debug("reply generated", zap.Int("len", len(reply)))
	return reply, nil
}

const quoteChars = "\"'`“”‘’«»"

// Normalize trims surrounding whitespace and quote characters and lowercases
// the rest.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		trimmed := strings.TrimSpace(strings.Trim(s, quoteChars))
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return strings.ToLower(s)
}
