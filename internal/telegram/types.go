package telegram

// Bot API payload types. Only the fields the relay reads are mapped;
// everything else is left to json.RawMessage semantics (ignored).

type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	EditedMessage *Message       `json:"edited_message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

type Message struct {
	MessageID       int64          `json:"message_id"`
	ThreadID        int64          `json:"message_thread_id,omitempty"`
	Date            int64          `json:"date,omitempty"`
	Chat            *Chat          `json:"chat,omitempty"`
	From            *User          `json:"from,omitempty"`
	Text            string         `json:"text,omitempty"`
	Caption         string         `json:"caption,omitempty"`
	Entities        []Entity       `json:"entities,omitempty"`
	CaptionEntities []Entity       `json:"caption_entities,omitempty"`
	ForwardOrigin   *MessageOrigin `json:"forward_origin,omitempty"`
	Audio           *File          `json:"audio,omitempty"`
	Voice           *File          `json:"voice,omitempty"`
	VideoNote       *File          `json:"video_note,omitempty"`
	Sticker         *File          `json:"sticker,omitempty"`
	Animation       *File          `json:"animation,omitempty"`
	Document        *File          `json:"document,omitempty"`
	Video           *File          `json:"video,omitempty"`
	Photo           []File         `json:"photo,omitempty"`
}

// MessageOrigin describes where a forwarded message came from.
// Type is one of: user, hidden_user, chat, channel.
type MessageOrigin struct {
	Type string `json:"type"`
	Chat *Chat  `json:"chat,omitempty"`
}

type Chat struct {
	ID    int64  `json:"id"`
	Type  string `json:"type,omitempty"` // private|group|supergroup|channel
	Title string `json:"title,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
	User   *User  `json:"user,omitempty"` // for text_mention
}

type File struct {
	FileID string `json:"file_id"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// DisplayName renders a user the way the relay names threads and cards.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}
