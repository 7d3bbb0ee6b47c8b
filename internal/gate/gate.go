// Package gate runs the ordered gatekeeping stages over an inbound private
// message before it may reach the relay: block check, verification, keyword
// blocking, content-type filtering, auto-reply. The first stage that fires
// terminates evaluation.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/relaydesk/relaydesk/internal/settings"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

type Action int

const (
	ActionForward Action = iota
	ActionDrop
	ActionReply
)

// Result is the pipeline verdict. Reason names the stage that fired, for
// logging only; user-visible text goes in Reply.
type Result struct {
	Action Action
	Reply  string
	Reason string
}

func forward() Result           { return Result{Action: ActionForward} }
func drop(reason string) Result { return Result{Action: ActionDrop, Reason: reason} }
func reply(reason, text string) Result {
	return Result{Action: ActionReply, Reason: reason, Reply: text}
}

type Pipeline struct {
	store  *store.Store
	cfg    *settings.Resolver
	rules  *settings.Rules
	logger *slog.Logger
}

func NewPipeline(s *store.Store, cfg *settings.Resolver, rules *settings.Rules, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{store: s, cfg: cfg, rules: rules, logger: logger}
}

// Evaluate runs the stages in order and persists any session mutation a
// stage makes (verification advance, block counting). The returned session
// is the post-evaluation state.
func (p *Pipeline) Evaluate(ctx context.Context, sess store.Session, msg *telegram.Message) (Result, store.Session, error) {
	if sess.Blocked {
		return drop("blocked"), sess, nil
	}

	if sess.State != store.StateVerified {
		res, updated, err := p.verify(ctx, sess, msg)
		return res, updated, err
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	if text != "" {
		res, updated, fired, err := p.keywordBlock(ctx, sess, text)
		if err != nil {
			return Result{}, sess, err
		}
		if fired {
			return res, updated, nil
		}
		sess = updated
	}

	if res, fired := p.contentFilter(ctx, msg); fired {
		return res, sess, nil
	}

	if text != "" {
		if res, fired := p.autoReply(ctx, text); fired {
			return res, sess, nil
		}
	}

	return forward(), sess, nil
}

func (p *Pipeline) verify(ctx context.Context, sess store.Session, msg *telegram.Message) (Result, store.Session, error) {
	text := strings.TrimSpace(msg.Text)
	question := p.cfg.Get(ctx, settings.KeyVerifyQuestion)

	if strings.HasPrefix(text, "/start") {
		if sess.State == store.StateNew {
			sess.State = store.StatePending
			if err := p.store.PutSession(ctx, sess); err != nil {
				return Result{}, sess, err
			}
		}
		return reply("verify_question", question), sess, nil
	}

	if sess.State == store.StateNew {
		return reply("verify_start_required", "Send /start to begin."), sess, nil
	}

	// pending: the message is treated as an answer, case-sensitive exact match.
	if text != "" && text == strings.TrimSpace(p.cfg.Get(ctx, settings.KeyVerifyAnswer)) {
		sess.State = store.StateVerified
		if err := p.store.PutSession(ctx, sess); err != nil {
			return Result{}, sess, err
		}
		return reply("verify_ok", "You're verified. Your messages now reach our team."), sess, nil
	}
	return reply("verify_wrong", "That's not the answer we expected. Try again.\n"+question), sess, nil
}

func (p *Pipeline) keywordBlock(ctx context.Context, sess store.Session, text string) (Result, store.Session, bool, error) {
	patterns, err := p.rules.BlockKeywords(ctx)
	if err != nil {
		return Result{}, sess, false, err
	}
	matched := ""
	for _, src := range patterns {
		pat := settings.Compile(src)
		if pat.Err() != nil {
			p.logger.Warn("gate_bad_block_pattern", "pattern", src, "error", pat.Err().Error())
			continue
		}
		if pat.Match(text) {
			matched = src
			break
		}
	}
	if matched == "" {
		return Result{}, sess, false, nil
	}

	threshold := p.cfg.GetInt(ctx, settings.KeyBlockThreshold)
	sess.BlockCount++
	final := threshold > 0 && sess.BlockCount >= threshold
	if final {
		sess.Blocked = true
	}
	if err := p.store.PutSession(ctx, sess); err != nil {
		return Result{}, sess, false, err
	}
	p.logger.Info("gate_keyword_hit",
		"user_id", sess.UserID,
		"pattern", matched,
		"count", sess.BlockCount,
		"threshold", threshold,
		"blocked", final,
	)
	if final {
		return reply("keyword_block_final", "Your message contained blocked content. You have been blocked."), sess, true, nil
	}
	warn := fmt.Sprintf("Your message contained blocked content and was not delivered (%d/%d warnings).", sess.BlockCount, threshold)
	return reply("keyword_block_warn", warn), sess, true, nil
}

func (p *Pipeline) contentFilter(ctx context.Context, msg *telegram.Message) (Result, bool) {
	kind := Classify(msg)

	switchKey := map[ContentKind]string{
		ContentForward: settings.KeyAllowForward,
		ContentAudio:   settings.KeyAllowAudio,
		ContentSticker: settings.KeyAllowSticker,
		ContentMedia:   settings.KeyAllowMedia,
		ContentText:    settings.KeyAllowText,
	}[kind]

	if !p.cfg.GetBool(ctx, switchKey) {
		return reply("filter_"+string(kind), "This kind of content is currently not accepted here."), true
	}
	if kind == ContentForward && IsChannelForward(msg) && !p.cfg.GetBool(ctx, settings.KeyAllowChannelForward) {
		return reply("filter_channel_forward", "Forwarded channel posts are currently not accepted here."), true
	}
	if HasLink(msg) && !p.cfg.GetBool(ctx, settings.KeyAllowLink) {
		return reply("filter_link", "Messages with links are currently not accepted here."), true
	}
	return Result{}, false
}

func (p *Pipeline) autoReply(ctx context.Context, text string) (Result, bool) {
	rules, err := p.rules.AutoReplies(ctx)
	if err != nil {
		p.logger.Warn("gate_auto_reply_load_failed", "error", err.Error())
		return Result{}, false
	}
	for _, rule := range rules {
		pat := settings.Compile(rule.Pattern)
		if pat.Err() != nil {
			p.logger.Warn("gate_bad_auto_reply_pattern", "pattern", rule.Pattern, "error", pat.Err().Error())
			continue
		}
		if pat.Match(text) {
			tag := p.cfg.Get(ctx, settings.KeyAutoReplyTag)
			return reply("auto_reply", strings.TrimSpace(tag+" "+rule.Reply)), true
		}
	}
	return Result{}, false
}
