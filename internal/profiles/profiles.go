// Package profiles loads the automated accounts a pass walks. Sources return
// active profiles only, in store order.
package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dlps55195/x-bot-worker/internal/config"
	"github.com/dlps55195/x-bot-worker/internal/types"
)

// Source lists the active profiles.
type Source interface {
	ActiveProfiles(ctx context.Context) ([]types.Profile, error)
}

// Open builds the configured source.
func Open(cfg *config.Config) (Source, error) {
	switch cfg.Profiles.Source {
	case "file", "":
		return NewFileSource(cfg.Profiles.Path), nil
	case "sqlite":
		return OpenSQLiteSource(cfg.Profiles.Path)
	case "supabase":
		return NewRESTSource(RESTConfig{
			BaseURL: cfg.Profiles.URL,
			Key:     cfg.Profiles.Key,
			Table:   cfg.Profiles.Table,
		}), nil
	default:
		return nil, fmt.Errorf("unknown profile source %q", cfg.Profiles.Source)
	}
}

// Close releases the source if it holds resources.
func Close(s Source) error {
	if c, ok := s.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// decodeLists accepts target lists stored either as a JSON array or as a
// string containing one.
func decodeLists(raw json.RawMessage) ([]string, error) {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var lists []string
	if err := json.Unmarshal(raw, &lists); err == nil {
		return cleanLists(lists), nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("target_lists: %w", err)
	}
	return decodeListsText(encoded)
}

func decodeListsText(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var lists []string
	if err := json.Unmarshal([]byte(s), &lists); err != nil {
		return nil, fmt.Errorf("target_lists: %w", err)
	}
	return cleanLists(lists), nil
}

func cleanLists(lists []string) []string {
	out := lists[:0]
	for _, l := range lists {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// decodeCookies returns the credential blob as text. Stores keep it either
// as a JSON string holding the array or as the array itself.
func decodeCookies(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		return encoded
	}
	return s
}
