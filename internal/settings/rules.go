package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/store"
)

// Rule list config keys.
const (
	keyAutoReplyRules = "rules.auto_reply"
	keyBlockKeywords  = "rules.block_keywords"
)

// AutoReplyRule answers a matching private message instead of relaying it.
// Matching is first-match-wins in insertion order.
type AutoReplyRule struct {
	ID      string `json:"id"`
	Pattern string `json:"pattern"`
	Reply   string `json:"reply"`
}

type autoReplyList struct {
	Rules []AutoReplyRule `json:"rules"`
}

type blockKeywordList struct {
	Patterns []string `json:"patterns"`
}

// Rules is the versioned list-of-rule repository. List mutations are
// read-modify-write over the whole stored value; concurrent admin edits are
// last-writer-wins (accepted, see DESIGN.md).
type Rules struct {
	store *store.Store
}

func NewRules(s *store.Store) *Rules {
	return &Rules{store: s}
}

func (r *Rules) AutoReplies(ctx context.Context) ([]AutoReplyRule, error) {
	raw, ok, err := r.store.GetConfig(ctx, keyAutoReplyRules)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var list autoReplyList
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list.Rules, nil
	}

	// Legacy line format: "pattern===reply" per line. Convert once.
	rules := parseLegacyAutoReplies(raw)
	if err := r.saveAutoReplies(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *Rules) AddAutoReply(ctx context.Context, pattern, reply string) (AutoReplyRule, error) {
	pattern = strings.TrimSpace(pattern)
	reply = strings.TrimSpace(reply)
	if pattern == "" || reply == "" {
		return AutoReplyRule{}, fmt.Errorf("%w: auto-reply needs a pattern and a reply", ErrInvalidRule)
	}
	rules, err := r.AutoReplies(ctx)
	if err != nil {
		return AutoReplyRule{}, err
	}
	rule := AutoReplyRule{ID: uuid.NewString(), Pattern: pattern, Reply: reply}
	rules = append(rules, rule)
	if err := r.saveAutoReplies(ctx, rules); err != nil {
		return AutoReplyRule{}, err
	}
	return rule, nil
}

func (r *Rules) DeleteAutoReply(ctx context.Context, id string) error {
	rules, err := r.AutoReplies(ctx)
	if err != nil {
		return err
	}
	kept := rules[:0]
	for _, rule := range rules {
		if rule.ID != id {
			kept = append(kept, rule)
		}
	}
	if len(kept) == len(rules) {
		return ErrRuleNotFound
	}
	return r.saveAutoReplies(ctx, kept)
}

func (r *Rules) saveAutoReplies(ctx context.Context, rules []AutoReplyRule) error {
	b, err := json.Marshal(autoReplyList{Rules: rules})
	if err != nil {
		return err
	}
	return r.store.SetConfig(ctx, keyAutoReplyRules, string(b))
}

func (r *Rules) BlockKeywords(ctx context.Context) ([]string, error) {
	raw, ok, err := r.store.GetConfig(ctx, keyBlockKeywords)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var list blockKeywordList
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list.Patterns, nil
	}

	patterns := parseLegacyLines(raw)
	if err := r.saveBlockKeywords(ctx, patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

// AddBlockKeyword appends a pattern. Identity is the pattern string itself,
// so empty and duplicate patterns are rejected.
func (r *Rules) AddBlockKeyword(ctx context.Context, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("%w: empty block keyword", ErrInvalidRule)
	}
	patterns, err := r.BlockKeywords(ctx)
	if err != nil {
		return err
	}
	for _, p := range patterns {
		if p == pattern {
			return fmt.Errorf("%w: %q", ErrDuplicateRule, pattern)
		}
	}
	return r.saveBlockKeywords(ctx, append(patterns, pattern))
}

func (r *Rules) DeleteBlockKeyword(ctx context.Context, pattern string) error {
	patterns, err := r.BlockKeywords(ctx)
	if err != nil {
		return err
	}
	kept := patterns[:0]
	for _, p := range patterns {
		if p != pattern {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(patterns) {
		return ErrRuleNotFound
	}
	return r.saveBlockKeywords(ctx, kept)
}

func (r *Rules) saveBlockKeywords(ctx context.Context, patterns []string) error {
	b, err := json.Marshal(blockKeywordList{Patterns: patterns})
	if err != nil {
		return err
	}
	return r.store.SetConfig(ctx, keyBlockKeywords, string(b))
}

// parseLegacyAutoReplies reads the old line-oriented format. Blank lines and
// "//" comments are ignored; lines without a "===" separator are skipped.
func parseLegacyAutoReplies(raw string) []AutoReplyRule {
	var rules []AutoReplyRule
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		pattern, reply, ok := strings.Cut(line, "===")
		if !ok {
			continue
		}
		pattern = strings.TrimSpace(pattern)
		reply = strings.TrimSpace(reply)
		if pattern == "" || reply == "" {
			continue
		}
		rules = append(rules, AutoReplyRule{ID: uuid.NewString(), Pattern: pattern, Reply: reply})
	}
	return rules
}

func parseLegacyLines(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "//") || seen[line] {
			continue
		}
		seen[line] = true
		out = append(out, line)
	}
	return out
}
