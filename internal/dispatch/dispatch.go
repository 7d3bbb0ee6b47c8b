// Package dispatch classifies inbound updates and routes them: private
// messages through the gatekeeping pipeline into the relay, admin-group
// messages to the reply fan-out, edits to reconciliation, button presses to
// the admin UI or direct session mutation. Every update is handled as an
// independent unit of work; nothing an update does can take the process down.
package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/relaydesk/relaydesk/internal/adminui"
	"github.com/relaydesk/relaydesk/internal/gate"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

// Transport is what the dispatcher itself sends: replies to users and
// callback answers. Relay and admin UI hold their own transport slices.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error
}

type Dispatcher struct {
	tg       Transport
	store    *store.Store
	pipeline *gate.Pipeline
	engine   *relay.Engine
	admin    *adminui.Manager
	groupID  int64
	admins   map[int64]bool
	timeout  time.Duration
	logger   *slog.Logger
}

type Options struct {
	GroupID      int64
	AdminIDs     []int64
	EventTimeout time.Duration
}

func New(tg Transport, s *store.Store, pipeline *gate.Pipeline, engine *relay.Engine, admin *adminui.Manager, opts Options, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[int64]bool, len(opts.AdminIDs))
	for _, id := range opts.AdminIDs {
		admins[id] = true
	}
	timeout := opts.EventTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		tg:       tg,
		store:    s,
		pipeline: pipeline,
		engine:   engine,
		admin:    admin,
		groupID:  opts.GroupID,
		admins:   admins,
		timeout:  timeout,
		logger:   logger,
	}
}

func (d *Dispatcher) IsAdmin(userID int64) bool { return d.admins[userID] }

// Dispatch handles one update in its own goroutine so the poll loop never
// blocks on processing. Panics and errors stay inside the event.
func (d *Dispatcher) Dispatch(u telegram.Update) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("dispatch_panic", "update_id", u.UpdateID, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.handle(ctx, u); err != nil {
			d.logger.Warn("dispatch_error", "update_id", u.UpdateID, "error", err.Error())
		}
	}()
}

func (d *Dispatcher) handle(ctx context.Context, u telegram.Update) error {
	switch {
	case u.CallbackQuery != nil:
		return d.handleCallback(ctx, u.CallbackQuery)
	case u.EditedMessage != nil:
		return d.handleEdited(ctx, u.EditedMessage)
	case u.Message != nil:
		return d.handleMessage(ctx, u.Message)
	default:
		return nil
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return nil
	}
	if msg.Chat.ID == d.groupID {
		return d.handleGroupMessage(ctx, msg)
	}
	if msg.Chat.Type != "private" {
		return nil
	}
	return d.handlePrivateMessage(ctx, msg)
}

func (d *Dispatcher) handlePrivateMessage(ctx context.Context, msg *telegram.Message) error {
	userID := msg.From.ID
	name := msg.From.DisplayName()
	sess, err := d.store.EnsureSession(ctx, userID, name, msg.From.Username)
	if err != nil {
		return err
	}

	// Admins never face the verification gate: force-verify once, up front.
	if d.admins[userID] && sess.State != store.StateVerified {
		sess.State = store.StateVerified
		if err := d.store.PutSession(ctx, sess); err != nil {
			return err
		}
	}

	// An admin mid-edit gets their input consumed before anything else.
	if d.admins[userID] && msg.Text != "" {
		consumed, err := d.admin.HandleAdminText(ctx, userID, msg.Chat.ID, msg.Text)
		if err != nil {
			return err
		}
		if consumed {
			return nil
		}
	}

	// Display-name drift renames the thread; the binding survives.
	if sess.HasThread() && (sess.Name != name || sess.Handle != msg.From.Username) {
		sess, err = d.engine.PropagateProfileChange(ctx, sess, name, msg.From.Username)
		if err != nil {
			d.logger.Warn("dispatch_profile_change_failed", "user_id", userID, "error", err.Error())
		}
	}

	res, sess, err := d.pipeline.Evaluate(ctx, sess, msg)
	if err != nil {
		return err
	}
	switch res.Action {
	case gate.ActionReply:
		_, err := d.tg.SendMessage(ctx, msg.Chat.ID, res.Reply, nil)
		return err
	case gate.ActionDrop:
		d.logger.Debug("dispatch_dropped", "user_id", userID, "reason", res.Reason)
		return nil
	default:
		_, err := d.engine.Forward(ctx, sess, msg)
		return err
	}
}

func (d *Dispatcher) handleGroupMessage(ctx context.Context, msg *telegram.Message) error {
	if d.admins[msg.From.ID] {
		if cmd, _, _ := strings.Cut(strings.TrimSpace(msg.Text), " "); normalizeCommand(cmd) == "/settings" {
			return d.admin.ShowMenu(ctx, msg.Chat.ID)
		}
		if msg.Text != "" {
			consumed, err := d.admin.HandleAdminText(ctx, msg.From.ID, msg.Chat.ID, msg.Text)
			if err != nil {
				return err
			}
			if consumed {
				return nil
			}
		}
	}
	if msg.ThreadID == 0 {
		return nil
	}
	return d.engine.FanOutAdminReply(ctx, msg)
}

func (d *Dispatcher) handleEdited(ctx context.Context, msg *telegram.Message) error {
	if msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return nil
	}
	if msg.Chat.Type != "private" || msg.Chat.ID == d.groupID {
		return nil
	}
	sess, ok, err := d.store.GetSession(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	// Edits from blocked or unverified users never reached a thread.
	if !ok || sess.Blocked || sess.State != store.StateVerified {
		return nil
	}
	_, err = d.engine.ReconcileEdit(ctx, sess, msg)
	return err
}

func (d *Dispatcher) handleCallback(ctx context.Context, q *telegram.CallbackQuery) error {
	if q.From == nil {
		return nil
	}
	if !d.admins[q.From.ID] {
		return d.tg.AnswerCallbackQuery(ctx, q.ID, "You're not allowed to do that.", true)
	}

	cb, err := adminui.Decode(q.Data)
	if err != nil {
		d.logger.Warn("dispatch_bad_callback", "data", q.Data, "error", err.Error())
		return d.tg.AnswerCallbackQuery(ctx, q.ID, "", false)
	}

	switch cb.Family {
	case adminui.FamilyConfig:
		return d.admin.HandleConfigCallback(ctx, q, cb)
	case adminui.FamilyBlock:
		userID, err := cb.UserIDArg()
		if err != nil {
			return err
		}
		if err := d.engine.Block(ctx, userID); err != nil {
			return err
		}
		return d.tg.AnswerCallbackQuery(ctx, q.ID, "Blocked.", false)
	case adminui.FamilyUnblock:
		userID, err := cb.UserIDArg()
		if err != nil {
			return err
		}
		if err := d.engine.Unblock(ctx, userID); err != nil {
			return err
		}
		return d.tg.AnswerCallbackQuery(ctx, q.ID, "Unblocked.", false)
	case adminui.FamilyPinCard:
		userID, err := cb.UserIDArg()
		if err != nil {
			return err
		}
		if err := d.engine.PinCard(ctx, userID); err != nil {
			// The one path where the transport description reaches an admin.
			return d.tg.AnswerCallbackQuery(ctx, q.ID, "Pin failed: "+err.Error(), true)
		}
		return d.tg.AnswerCallbackQuery(ctx, q.ID, "Pinned.", false)
	default:
		return d.tg.AnswerCallbackQuery(ctx, q.ID, "", false)
	}
}

func normalizeCommand(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if !strings.HasPrefix(cmd, "/") {
		return ""
	}
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd)
}
