package gate

import (
	"strings"

	"github.com/relaydesk/relaydesk/internal/telegram"
)

// ContentKind is the primary category of an inbound message. A message gets
// exactly one kind, picked by fixed precedence:
// forward > audio/voice > sticker/animation > media > text.
type ContentKind string

const (
	ContentForward ContentKind = "forward"
	ContentAudio   ContentKind = "audio"
	ContentSticker ContentKind = "sticker"
	ContentMedia   ContentKind = "media"
	ContentText    ContentKind = "text"
)

func Classify(msg *telegram.Message) ContentKind {
	switch {
	case msg.ForwardOrigin != nil:
		return ContentForward
	case msg.Audio != nil || msg.Voice != nil || msg.VideoNote != nil:
		return ContentAudio
	case msg.Sticker != nil || msg.Animation != nil:
		return ContentSticker
	case msg.Document != nil || msg.Video != nil || len(msg.Photo) > 0:
		return ContentMedia
	default:
		return ContentText
	}
}

// IsChannelForward reports whether a forwarded message originated in a
// channel. Gated by a sub-switch nested under the forward switch.
func IsChannelForward(msg *telegram.Message) bool {
	origin := msg.ForwardOrigin
	if origin == nil {
		return false
	}
	if strings.EqualFold(origin.Type, "channel") {
		return true
	}
	return origin.Chat != nil && strings.EqualFold(origin.Chat.Type, "channel")
}

// HasLink checks the message entities (text and caption) for any link,
// independently of the primary category.
func HasLink(msg *telegram.Message) bool {
	for _, ents := range [][]telegram.Entity{msg.Entities, msg.CaptionEntities} {
		for _, e := range ents {
			switch strings.ToLower(e.Type) {
			case "url", "text_link":
				return true
			}
		}
	}
	return false
}
