package adminui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/relaydesk/relaydesk/internal/settings"
	"github.com/relaydesk/relaydesk/internal/store"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

func TestCallbackCodecRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
		want Callback
	}{
		{"menu", Encode(FamilyConfig, ActionMenu, SectionFilters), Callback{FamilyConfig, []string{ActionMenu, SectionFilters}}},
		{"toggle", Encode(FamilyConfig, ActionToggle, settings.KeyAllowSticker), Callback{FamilyConfig, []string{ActionToggle, settings.KeyAllowSticker}}},
		{"del by index", Encode(FamilyConfig, ActionDelRule, SectionBlockWords, "3"), Callback{FamilyConfig, []string{ActionDelRule, SectionBlockWords, "3"}}},
		{"block", EncodeBlock(42), Callback{FamilyBlock, []string{"42"}}},
		{"unblock", EncodeUnblock(42), Callback{FamilyUnblock, []string{"42"}}},
		{"pin", EncodePinCard(42), Callback{FamilyPinCard, []string{"42"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode(tc.data)
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tc.data, err)
			}
			if got.Family != tc.want.Family {
				t.Fatalf("family = %q, want %q", got.Family, tc.want.Family)
			}
			if len(got.Args) != len(tc.want.Args) {
				t.Fatalf("args = %v, want %v", got.Args, tc.want.Args)
			}
			for i := range got.Args {
				if got.Args[i] != tc.want.Args[i] {
					t.Fatalf("args = %v, want %v", got.Args, tc.want.Args)
				}
			}
		})
	}
}

func TestCallbackCodecRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, data := range []string{"", "   ", "config", "block", "block:1:2", "mystery:1"} {
		if _, err := Decode(data); err == nil {
			t.Fatalf("Decode(%q) expected error", data)
		}
	}
}

func TestCallbackUserIDArg(t *testing.T) {
	t.Parallel()

	cb, err := Decode(EncodeBlock(987654321))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	id, err := cb.UserIDArg()
	if err != nil {
		t.Fatalf("UserIDArg() error = %v", err)
	}
	if id != 987654321 {
		t.Fatalf("id = %d, want 987654321", id)
	}

	bad := Callback{Family: FamilyBlock, Args: []string{"not-a-number"}}
	if _, err := bad.UserIDArg(); err == nil {
		t.Fatalf("UserIDArg(bad) expected error")
	}
}

func TestSessionsTakeOnce(t *testing.T) {
	t.Parallel()
	s := NewSessions()

	s.Start(9, EditState{Kind: EditScalar, Key: settings.KeyVerifyQuestion})
	s.Start(9, EditState{Kind: EditAddBlockKeyword, Key: SectionBlockWords})

	st, ok := s.Take(9)
	if !ok {
		t.Fatalf("Take() missing state")
	}
	if st.Kind != EditAddBlockKeyword {
		t.Fatalf("kind = %q, a second edit action must overwrite the first", st.Kind)
	}
	if _, ok := s.Take(9); ok {
		t.Fatalf("Take() must consume the state")
	}
}

type fakeTransport struct {
	sent    []string
	edits   []string
	answers []string
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text string, opts *telegram.SendOptions) (*telegram.Message, error) {
	f.sent = append(f.sent, text)
	return &telegram.Message{MessageID: int64(len(f.sent))}, nil
}

func (f *fakeTransport) EditMessageText(ctx context.Context, chatID, messageID int64, text string, markup *telegram.InlineKeyboardMarkup) error {
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeTransport) AnswerCallbackQuery(ctx context.Context, callbackID, text string, showAlert bool) error {
	f.answers = append(f.answers, text)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeTransport, *settings.Resolver) {
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
	tg := &fakeTransport{}
	cfg := settings.NewResolver(s)
	m := NewManager(tg, cfg, settings.NewRules(s), NewSessions(), nil)
	return m, tg, cfg
}

func configQuery(data string) *telegram.CallbackQuery {
	return &telegram.CallbackQuery{
		ID:   "cbq-1",
		From: &telegram.User{ID: 77},
		Message: &telegram.Message{
			MessageID: 500,
			Chat:      &telegram.Chat{ID: -100900, Type: "supergroup"},
		},
		Data: data,
	}
}

func TestToggleFlipsAndRedraws(t *testing.T) {
	t.Parallel()
	m, tg, cfg := newTestManager(t)
	ctx := context.Background()

	if !cfg.GetBool(ctx, settings.KeyAllowSticker) {
		t.Fatalf("sticker default must be on")
	}

	data := Encode(FamilyConfig, ActionToggle, settings.KeyAllowSticker)
	cb, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := m.HandleConfigCallback(ctx, configQuery(data), cb); err != nil {
		t.Fatalf("HandleConfigCallback() error = %v", err)
	}

	if cfg.GetBool(ctx, settings.KeyAllowSticker) {
		t.Fatalf("toggle did not flip the value")
	}
	if len(tg.edits) != 1 {
		t.Fatalf("edits = %d, want one in-place menu redraw", len(tg.edits))
	}
	if len(tg.answers) != 1 {
		t.Fatalf("answers = %d, callback must be acknowledged", len(tg.answers))
	}
}

func TestScalarEditFlow(t *testing.T) {
	t.Parallel()
	m, tg, cfg := newTestManager(t)
	ctx := context.Background()

	data := Encode(FamilyConfig, ActionEdit, settings.KeyVerifyQuestion)
	cb, _ := Decode(data)
	if err := m.HandleConfigCallback(ctx, configQuery(data), cb); err != nil {
		t.Fatalf("HandleConfigCallback() error = %v", err)
	}
	if len(tg.sent) != 1 || !strings.Contains(tg.sent[0], settings.KeyVerifyQuestion) {
		t.Fatalf("prompt = %v, want a prompt naming the key", tg.sent)
	}

	consumed, err := m.HandleAdminText(ctx, 77, -100900, "What is 2+2?")
	if err != nil {
		t.Fatalf("HandleAdminText() error = %v", err)
	}
	if !consumed {
		t.Fatalf("input with an outstanding edit must be consumed")
	}
	if got := cfg.Get(ctx, settings.KeyVerifyQuestion); got != "What is 2+2?" {
		t.Fatalf("stored question = %q", got)
	}
	if last := tg.sent[len(tg.sent)-1]; last != "Saved." {
		t.Fatalf("confirmation = %q, want Saved.", last)
	}

	// No session left: the next message is not consumed.
	consumed, err = m.HandleAdminText(ctx, 77, -100900, "just chatting")
	if err != nil || consumed {
		t.Fatalf("HandleAdminText() = consumed=%v err=%v, want pass-through", consumed, err)
	}
}

func TestCancelKeywordAbortsEdit(t *testing.T) {
	t.Parallel()
	m, tg, cfg := newTestManager(t)
	ctx := context.Background()

	data := Encode(FamilyConfig, ActionEdit, settings.KeyAutoReplyTag)
	cb, _ := Decode(data)
	if err := m.HandleConfigCallback(ctx, configQuery(data), cb); err != nil {
		t.Fatalf("HandleConfigCallback() error = %v", err)
	}

	consumed, err := m.HandleAdminText(ctx, 77, -100900, "  /CANCEL  ")
	if err != nil {
		t.Fatalf("HandleAdminText() error = %v", err)
	}
	if !consumed {
		t.Fatalf("cancel keyword must consume the message")
	}
	if got := cfg.Get(ctx, settings.KeyAutoReplyTag); got != "[auto-reply]" {
		t.Fatalf("value changed on cancel: %q", got)
	}
	if last := tg.sent[len(tg.sent)-1]; last != "Cancelled." {
		t.Fatalf("confirmation = %q, want Cancelled.", last)
	}
}

func TestAddAutoReplyRejectsMalformedInput(t *testing.T) {
	t.Parallel()
	m, tg, _ := newTestManager(t)
	ctx := context.Background()

	data := Encode(FamilyConfig, ActionAddRule, SectionAutoReply)
	cb, _ := Decode(data)
	if err := m.HandleConfigCallback(ctx, configQuery(data), cb); err != nil {
		t.Fatalf("HandleConfigCallback() error = %v", err)
	}

	consumed, err := m.HandleAdminText(ctx, 77, -100900, "no separator here")
	if err != nil {
		t.Fatalf("HandleAdminText() error = %v", err)
	}
	if !consumed {
		t.Fatalf("malformed input must still be consumed")
	}
	if last := tg.sent[len(tg.sent)-1]; !strings.Contains(last, "pattern===reply") {
		t.Fatalf("feedback = %q, want format hint", last)
	}
}

func TestDeleteBlockKeywordByIndex(t *testing.T) {
	t.Parallel()
	m, tg, _ := newTestManager(t)
	ctx := context.Background()

	for _, p := range []string{"a:b", "casino"} {
		if _, err := m.rules.AddAutoReply(ctx, p, "x"); err != nil {
			t.Fatalf("AddAutoReply() error = %v", err)
		}
		if err := m.rules.AddBlockKeyword(ctx, p); err != nil {
			t.Fatalf("AddBlockKeyword() error = %v", err)
		}
	}

	// Index addressing sidesteps colons inside the pattern itself.
	data := Encode(FamilyConfig, ActionDelRule, SectionBlockWords, "0")
	cb, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := m.HandleConfigCallback(ctx, configQuery(data), cb); err != nil {
		t.Fatalf("HandleConfigCallback() error = %v", err)
	}

	patterns, err := m.rules.BlockKeywords(ctx)
	if err != nil {
		t.Fatalf("BlockKeywords() error = %v", err)
	}
	if len(patterns) != 1 || patterns[0] != "casino" {
		t.Fatalf("patterns = %v, want [casino]", patterns)
	}
	if len(tg.edits) == 0 {
		t.Fatalf("rule list must be redrawn after delete")
	}

	// Stale index: the list shrank underneath the button.
	data = Encode(FamilyConfig, ActionDelRule, SectionBlockWords, "5")
	cb, _ = Decode(data)
	if err := m.HandleConfigCallback(ctx, configQuery(data), cb); err != nil {
		t.Fatalf("HandleConfigCallback(stale) error = %v", err)
	}
	if last := tg.answers[len(tg.answers)-1]; last != "Already gone." {
		t.Fatalf("answer = %q, want Already gone.", last)
	}
}
