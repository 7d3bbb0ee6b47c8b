package settings

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed is the optional YAML file loaded at boot to pre-populate rule lists
// when the store has none yet. Existing lists are never overwritten.
type Seed struct {
	AutoReply []struct {
		Pattern string `yaml:"pattern"`
		Reply   string `yaml:"reply"`
	} `yaml:"auto_reply"`
	BlockKeywords []string `yaml:"block_keywords"`
}

func LoadSeed(path string) (Seed, error) {
	var seed Seed
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, err
	}
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed rules %s: %w", path, err)
	}
	return seed, nil
}

// Apply writes the seed into empty rule lists. Returns how many rules landed.
func (r *Rules) Apply(ctx context.Context, seed Seed) (int, error) {
	applied := 0

	existing, err := r.AutoReplies(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		for _, item := range seed.AutoReply {
			if strings.TrimSpace(item.Pattern) == "" || strings.TrimSpace(item.Reply) == "" {
				continue
			}
			if _, err := r.AddAutoReply(ctx, item.Pattern, item.Reply); err != nil {
				return applied, err
			}
			applied++
		}
	}

	keywords, err := r.BlockKeywords(ctx)
	if err != nil {
		return applied, err
	}
	if len(keywords) == 0 {
		for _, p := range seed.BlockKeywords {
			if strings.TrimSpace(p) == "" {
				continue
			}
			if err := r.AddBlockKeyword(ctx, p); err != nil {
				return applied, err
			}
			applied++
		}
	}
	return applied, nil
}
