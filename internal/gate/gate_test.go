package gate

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/relaydesk/relaydesk/internal/settings"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

type fixture struct {
	store    *store.Store
	cfg      *settings.Resolver
	rules    *settings.Rules
	pipeline *Pipeline
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.sqlite")
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := store.New(gdb)
	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	cfg := settings.NewResolver(s)
	rules := settings.NewRules(s)
	return &fixture{
		store:    s,
		cfg:      cfg,
		rules:    rules,
		pipeline: NewPipeline(s, cfg, rules, slog.Default()),
	}
}

func (f *fixture) verifiedSession(t *testing.T, userID int64) store.Session {
	t.Helper()
	sess, err := f.store.EnsureSession(context.Background(), userID, "User", "user")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	sess.State = store.StateVerified
	if err := f.store.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	return sess
}

func textMsg(text string) *telegram.Message {
	return &telegram.Message{MessageID: 1, Chat: &telegram.Chat{ID: 10, Type: "private"}, Text: text}
}

func TestBlockedSessionDropsSilently(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sess := f.verifiedSession(t, 1)
	sess.Blocked = true

	res, _, err := f.pipeline.Evaluate(context.Background(), sess, textMsg("hello"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionDrop || res.Reply != "" {
		t.Fatalf("blocked user: action=%v reply=%q, want silent drop", res.Action, res.Reply)
	}
}

func TestVerificationFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.cfg.Set(ctx, settings.KeyVerifyAnswer, "opensesame"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	sess, err := f.store.EnsureSession(ctx, 2, "User", "user")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}

	// A plain message before /start only prompts for /start.
	res, sess, err := f.pipeline.Evaluate(ctx, sess, textMsg("hi"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionReply || sess.State != store.StateNew {
		t.Fatalf("pre-start: action=%v state=%q", res.Action, sess.State)
	}

	// /start advances to pending and asks the question.
	res, sess, err = f.pipeline.Evaluate(ctx, sess, textMsg("/start"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionReply || sess.State != store.StatePending {
		t.Fatalf("start: action=%v state=%q", res.Action, sess.State)
	}

	// Wrong answer leaves state unchanged.
	res, sess, err = f.pipeline.Evaluate(ctx, sess, textMsg("OpenSesame"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if sess.State != store.StatePending {
		t.Fatalf("wrong answer moved state to %q (answer match is case-sensitive)", sess.State)
	}

	// Correct answer (with surrounding whitespace) verifies.
	res, sess, err = f.pipeline.Evaluate(ctx, sess, textMsg("  opensesame  "))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionReply || sess.State != store.StateVerified {
		t.Fatalf("correct answer: action=%v state=%q", res.Action, sess.State)
	}

	// Monotonic: a later wrong "answer" cannot revert verification.
	_, sess, err = f.pipeline.Evaluate(ctx, sess, textMsg("wrong"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if sess.State != store.StateVerified {
		t.Fatalf("verification reverted to %q", sess.State)
	}
}

func TestKeywordBlockCounting(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.rules.AddBlockKeyword(ctx, "casino"); err != nil {
		t.Fatalf("AddBlockKeyword() error = %v", err)
	}
	if err := f.cfg.Set(ctx, settings.KeyBlockThreshold, "3"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	sess := f.verifiedSession(t, 3)

	for i := 1; i <= 2; i++ {
		res, updated, err := f.pipeline.Evaluate(ctx, sess, textMsg("visit my CASINO now"))
		if err != nil {
			t.Fatalf("Evaluate() #%d error = %v", i, err)
		}
		if res.Action != ActionReply {
			t.Fatalf("hit #%d action = %v, want warning reply", i, res.Action)
		}
		if updated.Blocked {
			t.Fatalf("hit #%d blocked early", i)
		}
		if updated.BlockCount != i {
			t.Fatalf("hit #%d count = %d, want %d", i, updated.BlockCount, i)
		}
		sess = updated
	}

	res, sess, err := f.pipeline.Evaluate(ctx, sess, textMsg("casino again"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionReply || !sess.Blocked || sess.BlockCount != 3 {
		t.Fatalf("third hit: action=%v blocked=%v count=%d", res.Action, sess.Blocked, sess.BlockCount)
	}

	// The store saw the mutation, not just the returned copy.
	stored, _, err := f.store.GetSession(ctx, 3)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if !stored.Blocked {
		t.Fatalf("block not persisted")
	}
}

func TestBadBlockPatternIsSkipped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.rules.AddBlockKeyword(ctx, "([unclosed"); err != nil {
		t.Fatalf("AddBlockKeyword() error = %v", err)
	}
	if err := f.rules.AddBlockKeyword(ctx, "spam"); err != nil {
		t.Fatalf("AddBlockKeyword() error = %v", err)
	}
	sess := f.verifiedSession(t, 4)

	res, sess, err := f.pipeline.Evaluate(ctx, sess, textMsg("pure spam"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionReply || sess.BlockCount != 1 {
		t.Fatalf("later pattern must still fire: action=%v count=%d", res.Action, sess.BlockCount)
	}
}

func TestContentFilterChannelForwardPrecedence(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	// Forwards allowed, channel forwards not, links not.
	if err := f.cfg.Set(ctx, settings.KeyAllowForward, "true"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := f.cfg.Set(ctx, settings.KeyAllowChannelForward, "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := f.cfg.Set(ctx, settings.KeyAllowLink, "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	sess := f.verifiedSession(t, 5)

	msg := textMsg("look https://example.com")
	msg.ForwardOrigin = &telegram.MessageOrigin{Type: "channel", Chat: &telegram.Chat{ID: -100, Type: "channel"}}
	msg.Entities = []telegram.Entity{{Type: "url", Offset: 5, Length: 19}}

	res, _, err := f.pipeline.Evaluate(ctx, sess, msg)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionReply {
		t.Fatalf("action = %v, want explanatory reply", res.Action)
	}
	if res.Reason != "filter_channel_forward" {
		t.Fatalf("reason = %q, want channel-forward (category precedence over link)", res.Reason)
	}
}

func TestContentFilterDisabledCategory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if err := f.cfg.Set(ctx, settings.KeyAllowSticker, "false"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	sess := f.verifiedSession(t, 6)

	msg := &telegram.Message{
		MessageID: 2,
		Chat:      &telegram.Chat{ID: 6, Type: "private"},
		Sticker:   &telegram.File{FileID: "st1"},
	}
	res, _, err := f.pipeline.Evaluate(ctx, sess, msg)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionReply || res.Reason != "filter_sticker" {
		t.Fatalf("sticker with filter off: action=%v reason=%q", res.Action, res.Reason)
	}
}

func TestAutoReplyFirstMatchWins(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.rules.AddAutoReply(ctx, "price|cost", "See our price list."); err != nil {
		t.Fatalf("AddAutoReply() error = %v", err)
	}
	if _, err := f.rules.AddAutoReply(ctx, "price", "Second rule, never reached."); err != nil {
		t.Fatalf("AddAutoReply() error = %v", err)
	}
	sess := f.verifiedSession(t, 7)

	res, _, err := f.pipeline.Evaluate(ctx, sess, textMsg("what is the PRICE?"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionReply || res.Reason != "auto_reply" {
		t.Fatalf("action=%v reason=%q, want auto_reply", res.Action, res.Reason)
	}
	want := "[auto-reply] See our price list."
	if res.Reply != want {
		t.Fatalf("reply = %q, want %q", res.Reply, want)
	}
}

func TestCleanMessageForwards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sess := f.verifiedSession(t, 8)

	res, _, err := f.pipeline.Evaluate(context.Background(), sess, textMsg("just a question"))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if res.Action != ActionForward {
		t.Fatalf("action = %v, want forward", res.Action)
	}
}

func TestClassifyPrecedence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		msg  *telegram.Message
		want ContentKind
	}{
		{
			name: "forward beats audio",
			msg: &telegram.Message{
				ForwardOrigin: &telegram.MessageOrigin{Type: "user"},
				Voice:         &telegram.File{FileID: "v"},
			},
			want: ContentForward,
		},
		{
			name: "voice beats sticker",
			msg: &telegram.Message{
				Voice:   &telegram.File{FileID: "v"},
				Sticker: &telegram.File{FileID: "s"},
			},
			want: ContentAudio,
		},
		{
			name: "animation beats document",
			msg: &telegram.Message{
				Animation: &telegram.File{FileID: "a"},
				Document:  &telegram.File{FileID: "d"},
			},
			want: ContentSticker,
		},
		{
			name: "photo is media",
			msg:  &telegram.Message{Photo: []telegram.File{{FileID: "p"}}},
			want: ContentMedia,
		},
		{
			name: "bare text",
			msg:  &telegram.Message{Text: "hi"},
			want: ContentText,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.msg); got != tc.want {
				t.Fatalf("Classify() = %q, want %q", got, tc.want)
			}
		})
	}
}
