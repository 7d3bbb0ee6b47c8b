package relay

import (
	"context"

	"github.com/relaydesk/relaydesk/internal/telegram"
)

// FanOutAdminReply mirrors an admin-authored thread message to the bound
// user. An unbound thread is discarded silently. When the mirror call fails,
// a type-specific direct send by file reference is attempted; content with
// no fallback path produces a plain "unsupported" notice instead of nothing.
func (e *Engine) FanOutAdminReply(ctx context.Context, msg *telegram.Message) error {
	if msg == nil || msg.ThreadID == 0 || msg.Chat == nil {
		return nil
	}
	sess, ok, err := e.store.UserByThread(ctx, msg.ThreadID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	_, copyErr := e.tg.CopyMessage(ctx, sess.UserID, 0, msg.Chat.ID, msg.MessageID)
	if copyErr == nil {
		return nil
	}
	e.logger.Warn("relay_fanout_copy_failed",
		"user_id", sess.UserID,
		"thread_id", msg.ThreadID,
		"error", copyErr.Error(),
	)

	kind, fileID, ok := mediaRef(msg)
	if !ok {
		if text := messageText(msg); text != "" {
			_, err := e.tg.SendMessage(ctx, sess.UserID, text, nil)
			return err
		}
		e.notifyUser(ctx, sess.UserID, noticeUnsupported)
		return copyErr
	}
	if err := e.tg.SendMedia(ctx, sess.UserID, kind, fileID, msg.Caption); err != nil {
		e.logger.Warn("relay_fanout_fallback_failed", "user_id", sess.UserID, "error", err.Error())
		e.notifyUser(ctx, sess.UserID, noticeUnsupported)
		return err
	}
	return nil
}

// mediaRef extracts the native media type and file reference for the
// fallback direct send.
func mediaRef(msg *telegram.Message) (telegram.MediaKind, string, bool) {
	switch {
	case len(msg.Photo) > 0:
		return telegram.MediaPhoto, msg.Photo[len(msg.Photo)-1].FileID, true
	case msg.Document != nil:
		return telegram.MediaDocument, msg.Document.FileID, true
	case msg.Video != nil:
		return telegram.MediaVideo, msg.Video.FileID, true
	case msg.Audio != nil:
		return telegram.MediaAudio, msg.Audio.FileID, true
	case msg.Voice != nil:
		return telegram.MediaVoice, msg.Voice.FileID, true
	case msg.Sticker != nil:
		return telegram.MediaSticker, msg.Sticker.FileID, true
	case msg.Animation != nil:
		return telegram.MediaAnimation, msg.Animation.FileID, true
	default:
		return "", "", false
	}
}
