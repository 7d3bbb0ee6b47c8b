// Package settings holds the admin-editable half of the configuration:
// scalar values and the rule lists, persisted in the store's config table.
// Boot-time configuration (token, chat ids, db) stays in viper.
package settings

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/relaydesk/relaydesk/internal/store"
)

// Scalar config keys.
const (
	KeyVerifyQuestion = "verify_question"
	KeyVerifyAnswer   = "verify_answer"
	KeyBlockThreshold = "block_threshold"
	KeyAutoReplyTag   = "auto_reply_tag"

	KeyAllowForward        = "allow_forward"
	KeyAllowChannelForward = "allow_channel_forward"
	KeyAllowAudio          = "allow_audio"
	KeyAllowSticker        = "allow_sticker"
	KeyAllowMedia          = "allow_media"
	KeyAllowText           = "allow_text"
	KeyAllowLink           = "allow_link"
)

// hardcoded defaults, the last resolution tier.
var defaults = map[string]string{
	KeyVerifyQuestion: "Before we connect you: what is 3 + 4?",
	KeyVerifyAnswer:   "7",
	KeyBlockThreshold: "3",
	KeyAutoReplyTag:   "[auto-reply]",

	KeyAllowForward:        "true",
	KeyAllowChannelForward: "true",
	KeyAllowAudio:          "true",
	KeyAllowSticker:        "true",
	KeyAllowMedia:          "true",
	KeyAllowText:           "true",
	KeyAllowLink:           "true",
}

// Resolver reads scalars with three-tier resolution: stored value, then the
// viper/env default under "defaults.<key>", then the hardcoded default.
type Resolver struct {
	store *store.Store
}

func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

func (r *Resolver) Get(ctx context.Context, key string) string {
	if v, ok, err := r.store.GetConfig(ctx, key); err == nil && ok {
		return v
	}
	if v := strings.TrimSpace(viper.GetString("defaults." + key)); v != "" {
		return v
	}
	return defaults[key]
}

func (r *Resolver) GetInt(ctx context.Context, key string) int {
	if n, err := strconv.Atoi(strings.TrimSpace(r.Get(ctx, key))); err == nil {
		return n
	}
	n, _ := strconv.Atoi(defaults[key])
	return n
}

func (r *Resolver) GetBool(ctx context.Context, key string) bool {
	if b, err := strconv.ParseBool(strings.TrimSpace(r.Get(ctx, key))); err == nil {
		return b
	}
	b, _ := strconv.ParseBool(defaults[key])
	return b
}

func (r *Resolver) Set(ctx context.Context, key, value string) error {
	return r.store.SetConfig(ctx, key, strings.TrimSpace(value))
}

// KnownKey reports whether key is an editable scalar. The admin menu only
// offers known keys, but callback data is still validated against this.
func KnownKey(key string) bool {
	_, ok := defaults[key]
	return ok
}
