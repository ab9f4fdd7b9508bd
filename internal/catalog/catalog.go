// Package catalog lists interview types, positions and display labels.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Option struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
}

type Catalog struct {
	InterviewTypes   []Option `yaml:"interview_types" json:"interview_types"`
	Positions        []Option `yaml:"positions" json:"positions"`
	PredictionLabels []Option `yaml:"prediction_labels" json:"prediction_labels"`
	ScoreDetailOrder []string `yaml:"score_detail_order" json:"score_detail_order"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns the built-in one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}

func validate(c *Catalog) error {
	if len(c.InterviewTypes) == 0 {
		return fmt.Errorf("interview_types is empty")
	}
	if len(c.Positions) == 0 {
		return fmt.Errorf("positions is empty")
	}
	for name, opts := range map[string][]Option{
		"interview_types":   c.InterviewTypes,
		"positions":         c.Positions,
		"prediction_labels": c.PredictionLabels,
	} {
		seen := make(map[string]bool, len(opts))
		for i, o := range opts {
			if o.Key == "" {
				return fmt.Errorf("%s[%d] has no key", name, i)
			}
			if seen[o.Key] {
				return fmt.Errorf("%s has duplicate key %q", name, o.Key)
			}
			seen[o.Key] = true
		}
	}
	return nil
}

func find(opts []Option, key string) (Option, bool) {
	for _, o := range opts {
		if o.Key == key {
			return o, true
		}
	}
	return Option{}, false
}

func (c *Catalog) HasInterviewType(key string) bool {
	_, ok := find(c.InterviewTypes, key)
	return ok
}

func (c *Catalog) HasPosition(key string) bool {
	_, ok := find(c.Positions, key)
	return ok
}

// PositionLabel falls back to the key for unknown positions.
func (c *Catalog) PositionLabel(key string) string {
	if o, ok := find(c.Positions, key); ok && o.Label != "" {
		return o.Label
	}
	return key
}

// PredictionLabel falls back to the key for unknown predictions.
func (c *Catalog) PredictionLabel(key string) string {
	if o, ok := find(c.PredictionLabels, key); ok && o.Label != "" {
		return o.Label
	}
	return key
}

// PredictionRank orders prediction keys: catalog order first, unknown keys after.
func (c *Catalog) PredictionRank(key string) int {
	for i, o := range c.PredictionLabels {
		if o.Key == key {
			return i
		}
	}
	return len(c.PredictionLabels)
}

// ScoreDetailRank orders score-detail keys the same way.
func (c *Catalog) ScoreDetailRank(key string) int {
	for i, k := range c.ScoreDetailOrder {
		if k == key {
			return i
		}
	}
	return len(c.ScoreDetailOrder)
}
