// Package relay binds each private-chat user to a dedicated discussion
// thread in the admin group and moves messages across: inbound forwarding
// with thread recovery, edited-message reconciliation, and admin reply
// fan-out back to the user.
package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

// Transport is the slice of the Bot API the engine calls. Failures arrive
// as *telegram.APIError and are treated as recoverable unless noted.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) (*telegram.Message, error)
	CopyMessage(ctx context.Context, toChatID, threadID, fromChatID, messageID int64) (int64, error)
	CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error)
	EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error
	PinChatMessage(ctx context.Context, chatID, messageID int64) error
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *telegram.InlineKeyboardMarkup) error
	SendMedia(ctx context.Context, chatID int64, kind telegram.MediaKind, fileID, caption string) error
}

type Engine struct {
	tg      Transport
	store   *store.Store
	groupID int64
	logger  *slog.Logger
}

func NewEngine(tg Transport, s *store.Store, groupID int64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{tg: tg, store: s, groupID: groupID, logger: logger}
}

const (
	noticeForwardFailed = "We couldn't deliver your message to the team just now. Please try again in a moment."
	noticeUnsupported   = "The team sent a reply in a format this chat can't receive."
)

// EnsureThread creates and binds a thread for the session if none exists,
// then posts the profile card. Creation failure is returned to the caller
// without a retry; the user is notified immediately.
func (e *Engine) EnsureThread(ctx context.Context, sess store.Session) (store.Session, error) {
	if sess.HasThread() {
		return sess, nil
	}

	threadID, err := e.tg.CreateForumTopic(ctx, e.groupID, threadName(sess))
	if err != nil {
		e.logger.Warn("relay_thread_create_failed", "user_id", sess.UserID, "error", err.Error())
		return sess, err
	}
	if err := e.store.BindThread(ctx, sess.UserID, threadID); err != nil {
		// Lost a creation race: another event bound first. This topic is
		// orphaned; keep using the winner's binding.
		e.logger.Warn("relay_thread_bind_lost", "user_id", sess.UserID, "thread_id", threadID, "error", err.Error())
		current, ok, gerr := e.store.GetSession(ctx, sess.UserID)
		if gerr == nil && ok && current.HasThread() {
			return current, nil
		}
		return sess, err
	}
	sess.ThreadID = &threadID
	e.logger.Info("relay_thread_created", "user_id", sess.UserID, "thread_id", threadID)

	sess = e.postCard(ctx, sess)
	return sess, nil
}

// postCard sends a fresh profile card into the bound thread and remembers
// its message id for in-place refreshes. Card failures are not fatal to the
// thread; the relay works without a card.
func (e *Engine) postCard(ctx context.Context, sess store.Session) store.Session {
	if !sess.HasThread() {
		return sess
	}
	sent, err := e.tg.SendMessage(ctx, e.groupID, cardText(sess), &telegram.SendOptions{
		ThreadID:    *sess.ThreadID,
		ReplyMarkup: cardMarkup(sess),
	})
	if err != nil {
		e.logger.Warn("relay_card_send_failed", "user_id", sess.UserID, "error", err.Error())
		return sess
	}
	sess.CardMessageID = sent.MessageID
	if err := e.store.PutSession(ctx, sess); err != nil {
		e.logger.Warn("relay_card_persist_failed", "user_id", sess.UserID, "error", err.Error())
	}
	return sess
}

// Forward copies an inbound private message into the user's thread. A copy
// failure invalidates the binding: the engine clears it, creates a
// replacement thread, and retries the copy exactly once. A second failure
// leaves the session thread-less and notifies the user.
func (e *Engine) Forward(ctx context.Context, sess store.Session, msg *telegram.Message) (store.Session, error) {
	sess, err := e.EnsureThread(ctx, sess)
	if err != nil {
		e.notifyUser(ctx, sess.UserID, noticeForwardFailed)
		return sess, err
	}

	_, copyErr := e.tg.CopyMessage(ctx, e.groupID, *sess.ThreadID, msg.Chat.ID, msg.MessageID)
	if copyErr != nil {
		// The bound thread is gone (deleted topic, migrated group). Rebuild
		// once and retry.
		e.logger.Warn("relay_forward_failed",
			"user_id", sess.UserID,
			"thread_id", *sess.ThreadID,
			"error", copyErr.Error(),
		)
		if err := e.store.ClearThread(ctx, sess.UserID); err != nil {
			return sess, err
		}
		sess.ThreadID = nil
		sess.CardMessageID = 0

		sess, err = e.EnsureThread(ctx, sess)
		if err != nil {
			e.notifyUser(ctx, sess.UserID, noticeForwardFailed)
			return sess, err
		}
		_, copyErr = e.tg.CopyMessage(ctx, e.groupID, *sess.ThreadID, msg.Chat.ID, msg.MessageID)
	}
	if copyErr != nil {
		e.logger.Warn("relay_forward_retry_failed", "user_id", sess.UserID, "error", copyErr.Error())
		if err := e.store.ClearThread(ctx, sess.UserID); err != nil {
			e.logger.Warn("relay_thread_clear_failed", "user_id", sess.UserID, "error", err.Error())
		}
		sess.ThreadID = nil
		sess.CardMessageID = 0
		e.notifyUser(ctx, sess.UserID, noticeForwardFailed)
		return sess, copyErr
	}

	if text := messageText(msg); text != "" {
		entry := store.LedgerEntry{
			UserID:    sess.UserID,
			MessageID: msg.MessageID,
			Text:      text,
			SentAt:    messageTime(msg),
		}
		if err := e.store.PutLedger(ctx, entry); err != nil {
			e.logger.Warn("relay_ledger_put_failed", "user_id", sess.UserID, "error", err.Error())
		}
	}
	return sess, nil
}

// ReconcileEdit notifies the thread that a prior inbound message changed,
// reporting the stored pre-edit content when the ledger has it. The ledger
// entry is overwritten with the new text; the original send time survives.
func (e *Engine) ReconcileEdit(ctx context.Context, sess store.Session, msg *telegram.Message) (store.Session, error) {
	newText := messageText(msg)
	if newText == "" {
		return sess, nil
	}
	sess, err := e.EnsureThread(ctx, sess)
	if err != nil {
		return sess, err
	}

	prev, ok, err := e.store.GetLedger(ctx, sess.UserID, msg.MessageID)
	if err != nil {
		return sess, err
	}

	var b strings.Builder
	b.WriteString("✏️ Message edited\n\n")
	if ok {
		b.WriteString("Was (" + prev.SentAt.Format("2006-01-02 15:04:05 MST") + "):\n")
		b.WriteString(prev.Text)
	} else {
		b.WriteString("Original content unavailable.")
	}
	b.WriteString("\n\nNow:\n")
	b.WriteString(newText)

	if _, err := e.tg.SendMessage(ctx, e.groupID, b.String(), &telegram.SendOptions{ThreadID: *sess.ThreadID}); err != nil {
		return sess, err
	}

	sentAt := prev.SentAt
	if !ok {
		sentAt = messageTime(msg)
	}
	err = e.store.PutLedger(ctx, store.LedgerEntry{
		UserID:    sess.UserID,
		MessageID: msg.MessageID,
		Text:      newText,
		SentAt:    sentAt,
	})
	return sess, err
}

// PropagateProfileChange renames the bound thread and posts a fresh card
// after the user's display name changed. The existing binding is kept.
func (e *Engine) PropagateProfileChange(ctx context.Context, sess store.Session, name, handle string) (store.Session, error) {
	sess.Name = name
	sess.Handle = handle
	if err := e.store.PutSession(ctx, sess); err != nil {
		return sess, err
	}
	if !sess.HasThread() {
		return sess, nil
	}
	if err := e.tg.EditForumTopic(ctx, e.groupID, *sess.ThreadID, threadName(sess)); err != nil {
		e.logger.Warn("relay_thread_rename_failed", "user_id", sess.UserID, "error", err.Error())
	}
	sess = e.postCard(ctx, sess)
	return sess, nil
}

func (e *Engine) notifyUser(ctx context.Context, userID int64, text string) {
	if _, err := e.tg.SendMessage(ctx, userID, text, nil); err != nil {
		e.logger.Warn("relay_notify_user_failed", "user_id", userID, "error", err.Error())
	}
}

func messageText(msg *telegram.Message) string {
	if t := strings.TrimSpace(msg.Text); t != "" {
		return t
	}
	return strings.TrimSpace(msg.Caption)
}

func messageTime(msg *telegram.Message) time.Time {
	if msg.Date > 0 {
		return time.Unix(msg.Date, 0).UTC()
	}
	return time.Now().UTC()
}
