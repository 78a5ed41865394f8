package profiles

import (
	"context"
	"fmt"
	"os"

	"github.com/dlps55195/x-bot-worker/internal/logging"
	"github.com/dlps55195/x-bot-worker/internal/types"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileSource reads profiles from a YAML file:
//
//	profiles:
//	  - id: alpha
//	    active: true
//	    target_lists: [https://x.com/i/lists/1]
//	    cookies: '[{"name": "auth_token", ...}]'
type FileSource struct {
	path string
}

// NewFileSource creates a file-backed source. The file is read on every call.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

type profileFile struct {
	Profiles []types.Profile `yaml:"profiles"`
}

// All returns every profile with an id, active or not, in file order.
func (s *FileSource) All(ctx context.Context) ([]types.Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse profiles file: %w", err)
	}

	log := logging.Get(logging.CategoryProfiles)
	out := make([]types.Profile, 0, len(pf.Profiles))
	for i, p := range pf.Profiles {
		if p.ID == "" {
			log.Warn("skipping profile without id", zap.Int("index", i))
			continue
		}
		p.TargetListURLs = cleanLists(p.TargetListURLs)
		out = append(out, p)
	}
	return out, nil
}

// ActiveProfiles returns the active profiles in file order.
func (s *FileSource) ActiveProfiles(ctx context.Context) ([]types.Profile, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]types.Profile, 0, len(all))
	for _, p := range all {
		if p.Active {
			active = append(active, p)
		}
	}
	logging.Get(logging.CategoryProfiles).Debug("profiles loaded", zap.String("path", s.path),
		zap.Int("total", len(all)), zap.Int("active", len(active)))
	return active, nil
}
