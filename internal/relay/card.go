package relay

import (
	"fmt"
	"strings"

	"github.com/relaydesk/relaydesk/internal/adminui"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

// maxTopicNameLen keeps composite thread names inside the forum topic limit.
const maxTopicNameLen = 64

// threadName derives the topic title from the user's display name and id.
func threadName(sess store.Session) string {
	name := strings.TrimSpace(sess.Name)
	if name == "" {
		name = "user"
	}
	full := fmt.Sprintf("%s · %d", name, sess.UserID)
	runes := []rune(full)
	if len(runes) <= maxTopicNameLen {
		return full
	}
	return string(runes[:maxTopicNameLen-1]) + "…"
}

// cardText renders the profile card posted at the top of each thread.
func cardText(sess store.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 %s\n", strings.TrimSpace(sess.Name))
	if sess.Handle != "" {
		fmt.Fprintf(&b, "@%s\n", sess.Handle)
	}
	fmt.Fprintf(&b, "id: %d\n", sess.UserID)
	if !sess.FirstSeenAt.IsZero() {
		fmt.Fprintf(&b, "first seen: %s\n", sess.FirstSeenAt.Format("2006-01-02 15:04 MST"))
	}
	if sess.Blocked {
		b.WriteString("status: 🚫 blocked")
	} else {
		b.WriteString("status: active")
	}
	return b.String()
}

// cardMarkup builds the block/unblock and pin controls. The block button
// reflects the current state so a refresh edits the card in place.
func cardMarkup(sess store.Session) *telegram.InlineKeyboardMarkup {
	blockBtn := telegram.InlineKeyboardButton{
		Text:         "Block",
		CallbackData: adminui.EncodeBlock(sess.UserID),
	}
	if sess.Blocked {
		blockBtn = telegram.InlineKeyboardButton{
			Text:         "Unblock",
			CallbackData: adminui.EncodeUnblock(sess.UserID),
		}
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{
			blockBtn,
			{Text: "Pin card", CallbackData: adminui.EncodePinCard(sess.UserID)},
		},
	}}
}
