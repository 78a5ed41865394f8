package profiles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/logging"
	"github.com/dlps55195/x-bot-worker/internal/types"

	"go.uber.org/zap"
)

// RESTConfig configures a PostgREST (Supabase) profile table.
type RESTConfig struct {
	BaseURL    string
	Key        string
	Table      string
	HTTPClient *http.Client
}

// RESTSource selects active rows from {base}/rest/v1/{table}.
type RESTSource struct {
	baseURL    string
	key        string
	table      string
	httpClient *http.Client
}

// NewRESTSource creates a PostgREST source.
func NewRESTSource(cfg RESTConfig) *RESTSource {
	if cfg.Table == "" {
		cfg.Table = "profiles"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTSource{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        cfg.Key,
		table:      cfg.Table,
		httpClient: cfg.HTTPClient,
	}
}

type restRow struct {
	ID          json.RawMessage `json:"id"`
	TargetLists json.RawMessage `json:"target_lists"`
	XCookies    json.RawMessage `json:"x_cookies"`
}

// ActiveProfiles runs select=id,target_lists,x_cookies&is_active=eq.true.
func (s *RESTSource) ActiveProfiles(ctx context.Context) ([]types.Profile, error) {
	q := url.Values{}
	q.Set("select", "id,target_lists,x_cookies")
	q.Set("is_active", "eq.true")
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", s.baseURL, url.PathEscape(s.table), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query profiles: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []restRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	log := logging.Get(logging.CategoryProfiles)
	out := make([]types.Profile, 0, len(rows))
	for i, row := range rows {
		id := strings.Trim(strings.TrimSpace(string(row.ID)), `"`)
		if id == "" || id == "null" {
			log.Warn("skipping profile row without id", zap.Int("index", i))
			continue
		}
		lists, err := decodeLists(row.TargetLists)
		if err != nil {
			log.Warn("skipping profile with unreadable target lists", zap.String("profile", id), zap.Error(err))
			continue
		}
		out = append(out, types.Profile{
			ID:             id,
			Active:         true,
			TargetListURLs: lists,
			Cookies:        decodeCookies(row.XCookies),
		})
	}
	return out, nil
}
