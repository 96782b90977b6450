package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest lists the source collections to process and, optionally, the
// storage bucket they live in.
//
//	bucket: zhodnoceni_procesu
//	sources:
//	  - CI
//	  - OPZ
type Manifest struct {
	Bucket  string   `yaml:"bucket"`
	Sources []string `yaml:"sources"`
}

func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read sources manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse sources manifest %s: %w", path, err)
	}
	sources := make([]string, 0, len(m.Sources))
	for _, s := range m.Sources {
		if s = strings.TrimSpace(s); s != "" {
			sources = append(sources, s)
		}
	}
	m.Sources = sources
	return m, nil
}

func (m Manifest) Apply(cfg *Config) {
	if strings.TrimSpace(m.Bucket) != "" {
		cfg.StorageBucket = strings.TrimSpace(m.Bucket)
	}
	if len(m.Sources) > 0 {
		cfg.Sources = m.Sources
	}
}
