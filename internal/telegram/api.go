package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client is a minimal Bot API client covering the calls the relay needs.
// Every remote failure is returned as *APIError so callers can decide
// whether to recover (thread recreation, fan-out fallback) or notify.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		token:   token,
	}
}

// APIError carries the remote description for a failed Bot API call.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("telegram %s: http %d", e.Method, e.Code)
	}
	return fmt.Sprintf("telegram %s: %s", e.Method, e.Description)
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("telegram %s: encode: %w", method, err)
		}
		body = bytes.NewReader(b)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &APIError{Method: method, Description: err.Error()}
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env apiResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{Method: method, Code: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
	}
	if !env.OK {
		return &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return &APIError{Method: method, Description: "malformed result: " + err.Error()}
		}
	}
	return nil
}

func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// GetUpdates long-polls and returns the updates plus the next offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	payload := map[string]any{
		"timeout":         secs,
		"allowed_updates": []string{"message", "edited_message", "callback_query"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()

	var updates []Update
	if err := c.call(reqCtx, "getUpdates", payload, &updates); err != nil {
		return nil, offset, err
	}
	next := offset
	for _, u := range updates {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return updates, next, nil
}

type SendOptions struct {
	ThreadID    int64
	ReplyMarkup *InlineKeyboardMarkup
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if opts != nil {
		if opts.ThreadID != 0 {
			payload["message_thread_id"] = opts.ThreadID
		}
		if opts.ReplyMarkup != nil {
			payload["reply_markup"] = opts.ReplyMarkup
		}
	}
	var sent Message
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return nil, err
	}
	return &sent, nil
}

// CopyMessage mirrors a message into the target chat (and thread, if any)
// without a "forwarded from" header. Returns the new message id.
func (c *Client) CopyMessage(ctx context.Context, toChatID, threadID, fromChatID, messageID int64) (int64, error) {
	payload := map[string]any{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	}
	if threadID != 0 {
		payload["message_thread_id"] = threadID
	}
	var out struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call(ctx, "copyMessage", payload, &out); err != nil {
		return 0, err
	}
	return out.MessageID, nil
}

func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (int64, error) {
	var out struct {
		ThreadID int64 `json:"message_thread_id"`
	}
	payload := map[string]any{"chat_id": chatID, "name": name}
	if err := c.call(ctx, "createForumTopic", payload, &out); err != nil {
		return 0, err
	}
	return out.ThreadID, nil
}

func (c *Client) EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error {
	payload := map[string]any{
		"chat_id":           chatID,
		"message_thread_id": threadID,
		"name":              name,
	}
	return c.call(ctx, "editForumTopic", payload, nil)
}

func (c *Client) PinChatMessage(ctx context.Context, chatID, messageID int64) error {
	payload := map[string]any{"chat_id": chatID, "message_id": messageID}
	return c.call(ctx, "pinChatMessage", payload, nil)
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *InlineKeyboardMarkup) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	if markup != nil {
		payload["reply_markup"] = markup
	}
	return c.call(ctx, "editMessageReplyMarkup", payload, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
		payload["show_alert"] = showAlert
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// MediaKind selects the direct-send method used by the fan-out fallback.
type MediaKind string

const (
	MediaPhoto     MediaKind = "photo"
	MediaDocument  MediaKind = "document"
	MediaVideo     MediaKind = "video"
	MediaAudio     MediaKind = "audio"
	MediaVoice     MediaKind = "voice"
	MediaSticker   MediaKind = "sticker"
	MediaAnimation MediaKind = "animation"
)

var mediaMethods = map[MediaKind]struct {
	method string
	field  string
}{
	MediaPhoto:     {"sendPhoto", "photo"},
	MediaDocument:  {"sendDocument", "document"},
	MediaVideo:     {"sendVideo", "video"},
	MediaAudio:     {"sendAudio", "audio"},
	MediaVoice:     {"sendVoice", "voice"},
	MediaSticker:   {"sendSticker", "sticker"},
	MediaAnimation: {"sendAnimation", "animation"},
}

// SendMedia re-sends media by file reference. Used when CopyMessage fails.
func (c *Client) SendMedia(ctx context.Context, chatID int64, kind MediaKind, fileID, caption string) error {
	m, ok := mediaMethods[kind]
	if !ok {
		return fmt.Errorf("telegram: unsupported media kind %q", kind)
	}
	payload := map[string]any{
		"chat_id": chatID,
		m.field:   fileID,
	}
	if caption != "" && kind != MediaSticker {
		payload["caption"] = caption
	}
	return c.call(ctx, m.method, payload, nil)
}
