package adminui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/relaydesk/relaydesk/internal/settings"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

// CancelKeyword aborts an outstanding edit without applying the input.
const CancelKeyword = "/cancel"

// Transport is the slice of the Bot API the admin UI needs.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error
}

type Manager struct {
	tg       Transport
	cfg      *settings.Resolver
	rules    *settings.Rules
	sessions *Sessions
	logger   *slog.Logger
}

func NewManager(tg Transport, cfg *settings.Resolver, rules *settings.Rules, sessions *Sessions, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{tg: tg, cfg: cfg, rules: rules, sessions: sessions, logger: logger}
}

// ShowMenu posts the top-level settings menu into a chat.
func (m *Manager) ShowMenu(ctx context.Context, chatID int64) error {
	text, markup, err := m.renderSection(ctx, SectionMain)
	if err != nil {
		return err
	}
	_, err = m.tg.SendMessage(ctx, chatID, text, &telegram.SendOptions{ReplyMarkup: markup})
	return err
}

// HandleConfigCallback drives the config family of button presses.
func (m *Manager) HandleConfigCallback(ctx context.Context, q *telegram.CallbackQuery, cb Callback) error {
	if q.Message == nil || q.Message.Chat == nil || q.From == nil {
		return m.tg.AnswerCallbackQuery(ctx, q.ID, "", false)
	}
	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID
	action := cb.Args[0]

	switch action {
	case ActionMenu:
		section := SectionMain
		if len(cb.Args) > 1 {
			section = cb.Args[1]
		}
		if err := m.redraw(ctx, chatID, messageID, section); err != nil {
			return err
		}

	case ActionToggle:
		if len(cb.Args) < 2 || !settings.KnownKey(cb.Args[1]) {
			return m.tg.AnswerCallbackQuery(ctx, q.ID, "Unknown setting.", true)
		}
		key := cb.Args[1]
		next := strconv.FormatBool(!m.cfg.GetBool(ctx, key))
		if err := m.cfg.Set(ctx, key, next); err != nil {
			return err
		}
		if err := m.redraw(ctx, chatID, messageID, SectionFilters); err != nil {
			return err
		}

	case ActionEdit:
		if len(cb.Args) < 2 || !settings.KnownKey(cb.Args[1]) {
			return m.tg.AnswerCallbackQuery(ctx, q.ID, "Unknown setting.", true)
		}
		key := cb.Args[1]
		m.sessions.Start(q.From.ID, EditState{
			Kind:          EditScalar,
			Key:           key,
			MenuChatID:    chatID,
			MenuMessageID: messageID,
		})
		prompt := fmt.Sprintf("Send the new value for %s (current: %s), or %s.", key, m.cfg.Get(ctx, key), CancelKeyword)
		if _, err := m.tg.SendMessage(ctx, chatID, prompt, threadOpts(q.Message)); err != nil {
			return err
		}

	case ActionAddRule:
		if len(cb.Args) < 2 {
			return m.tg.AnswerCallbackQuery(ctx, q.ID, "Malformed request.", true)
		}
		kind := EditAddBlockKeyword
		prompt := "Send the keyword pattern to block, or " + CancelKeyword + "."
		if cb.Args[1] == SectionAutoReply {
			kind = EditAddAutoReply
			prompt = "Send the rule as pattern===reply, or " + CancelKeyword + "."
		}
		m.sessions.Start(q.From.ID, EditState{
			Kind:          kind,
			Key:           cb.Args[1],
			MenuChatID:    chatID,
			MenuMessageID: messageID,
		})
		if _, err := m.tg.SendMessage(ctx, chatID, prompt, threadOpts(q.Message)); err != nil {
			return err
		}

	case ActionDelRule:
		if len(cb.Args) < 3 {
			return m.tg.AnswerCallbackQuery(ctx, q.ID, "Malformed request.", true)
		}
		if err := m.deleteRule(ctx, cb.Args[1], cb.Args[2]); err != nil {
			if errors.Is(err, settings.ErrRuleNotFound) {
				return m.tg.AnswerCallbackQuery(ctx, q.ID, "Already gone.", false)
			}
			return err
		}
		if err := m.redraw(ctx, chatID, messageID, cb.Args[1]); err != nil {
			return err
		}

	case ActionCancel:
		m.sessions.Clear(q.From.ID)
		section := SectionMain
		if len(cb.Args) > 1 {
			section = cb.Args[1]
		}
		if err := m.redraw(ctx, chatID, messageID, section); err != nil {
			return err
		}

	default:
		return m.tg.AnswerCallbackQuery(ctx, q.ID, "Unknown action.", true)
	}

	return m.tg.AnswerCallbackQuery(ctx, q.ID, "", false)
}

// HandleAdminText consumes the next text message from an admin with an
// outstanding edit session. Returns false when the admin has none, in which
// case the message belongs to the normal reply fan-out path.
func (m *Manager) HandleAdminText(ctx context.Context, adminID, chatID int64, text string) (bool, error) {
	st, ok := m.sessions.Take(adminID)
	if !ok {
		return false, nil
	}
	text = strings.TrimSpace(text)

	if strings.EqualFold(text, CancelKeyword) {
		if err := m.redraw(ctx, st.MenuChatID, st.MenuMessageID, m.sectionFor(st)); err != nil {
			m.logger.Warn("adminui_redraw_failed", "error", err.Error())
		}
		_, err := m.tg.SendMessage(ctx, chatID, "Cancelled.", nil)
		return true, err
	}

	var applyErr error
	switch st.Kind {
	case EditScalar:
		applyErr = m.cfg.Set(ctx, st.Key, text)
	case EditAddAutoReply:
		pattern, reply, ok := strings.Cut(text, "===")
		if !ok || strings.TrimSpace(pattern) == "" || strings.TrimSpace(reply) == "" {
			_, err := m.tg.SendMessage(ctx, chatID, "That doesn't look right. Use pattern===reply.", nil)
			return true, err
		}
		_, applyErr = m.rules.AddAutoReply(ctx, pattern, reply)
	case EditAddBlockKeyword:
		applyErr = m.rules.AddBlockKeyword(ctx, text)
		if errors.Is(applyErr, settings.ErrDuplicateRule) {
			_, err := m.tg.SendMessage(ctx, chatID, "That keyword is already on the list.", nil)
			return true, err
		}
	default:
		m.logger.Warn("adminui_unknown_edit_kind", "kind", string(st.Kind))
		return true, nil
	}
	if applyErr != nil {
		return true, applyErr
	}

	if err := m.redraw(ctx, st.MenuChatID, st.MenuMessageID, m.sectionFor(st)); err != nil {
		m.logger.Warn("adminui_redraw_failed", "error", err.Error())
	}
	_, err := m.tg.SendMessage(ctx, chatID, "Saved.", nil)
	return true, err
}

func (m *Manager) sectionFor(st EditState) string {
	switch st.Kind {
	case EditAddAutoReply:
		return SectionAutoReply
	case EditAddBlockKeyword:
		return SectionBlockWords
	default:
		return sectionForKey(st.Key)
	}
}

func (m *Manager) deleteRule(ctx context.Context, section, id string) error {
	switch section {
	case SectionAutoReply:
		return m.rules.DeleteAutoReply(ctx, id)
	case SectionBlockWords:
		idx, err := strconv.Atoi(id)
		if err != nil {
			return fmt.Errorf("bad keyword index %q", id)
		}
		patterns, err := m.rules.BlockKeywords(ctx)
		if err != nil {
			return err
		}
		if idx < 0 || idx >= len(patterns) {
			return settings.ErrRuleNotFound
		}
		return m.rules.DeleteBlockKeyword(ctx, patterns[idx])
	default:
		return fmt.Errorf("unknown rule section %q", section)
	}
}

func (m *Manager) redraw(ctx context.Context, chatID, messageID int64, section string) error {
	text, markup, err := m.renderSection(ctx, section)
	if err != nil {
		return err
	}
	return m.tg.EditMessageText(ctx, chatID, messageID, text, markup)
}

func threadOpts(msg *telegram.Message) *telegram.SendOptions {
	if msg == nil || msg.ThreadID == 0 {
		return nil
	}
	return &telegram.SendOptions{ThreadID: msg.ThreadID}
}
