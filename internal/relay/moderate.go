package relay

import (
	"context"
	"fmt"

	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

// Block marks the session blocked and refreshes the profile-card controls
// in place. A confirmation goes into the thread.
func (e *Engine) Block(ctx context.Context, userID int64) error {
	sess, ok, err := e.store.GetSession(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("block: no session for user %d", userID)
	}
	sess.Blocked = true
	if err := e.store.PutSession(ctx, sess); err != nil {
		return err
	}
	e.refreshCard(ctx, sess)
	e.confirmInThread(ctx, sess, "🚫 User blocked.")
	e.logger.Info("relay_user_blocked", "user_id", userID)
	return nil
}

// Unblock clears the block and the accumulated keyword counter.
func (e *Engine) Unblock(ctx context.Context, userID int64) error {
	sess, ok, err := e.store.GetSession(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unblock: no session for user %d", userID)
	}
	sess.Blocked = false
	sess.BlockCount = 0
	if err := e.store.PutSession(ctx, sess); err != nil {
		return err
	}
	e.refreshCard(ctx, sess)
	e.confirmInThread(ctx, sess, "✅ User unblocked.")
	e.logger.Info("relay_user_unblocked", "user_id", userID)
	return nil
}

// PinCard pins the profile card in the group. The transport description is
// surfaced to the admin on failure (the one diagnosability exception).
func (e *Engine) PinCard(ctx context.Context, userID int64) error {
	sess, ok, err := e.store.GetSession(ctx, userID)
	if err != nil {
		return err
	}
	if !ok || sess.CardMessageID == 0 {
		return fmt.Errorf("pin: no profile card for user %d", userID)
	}
	return e.tg.PinChatMessage(ctx, e.groupID, sess.CardMessageID)
}

func (e *Engine) refreshCard(ctx context.Context, sess store.Session) {
	if sess.CardMessageID == 0 {
		return
	}
	if err := e.tg.EditMessageReplyMarkup(ctx, e.groupID, sess.CardMessageID, cardMarkup(sess)); err != nil {
		e.logger.Warn("relay_card_refresh_failed", "user_id", sess.UserID, "error", err.Error())
	}
}

func (e *Engine) confirmInThread(ctx context.Context, sess store.Session, text string) {
	if !sess.HasThread() {
		return
	}
	if _, err := e.tg.SendMessage(ctx, e.groupID, text, &telegram.SendOptions{ThreadID: *sess.ThreadID}); err != nil {
		e.logger.Warn("relay_confirm_failed", "user_id", sess.UserID, "error", err.Error())
	}
}
