package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.sqlite")
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := New(gdb)
	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	return s
}

func TestEnsureSessionCreatesLazily(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	sess, err := s.EnsureSession(ctx, 101, "Alice", "alice")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if sess.State != StateNew {
		t.Fatalf("state = %q, want %q", sess.State, StateNew)
	}
	if sess.Blocked || sess.BlockCount != 0 {
		t.Fatalf("new session must be unblocked with zero count")
	}

	// Second call returns the existing session, not a reset one.
	sess.State = StateVerified
	if err := s.PutSession(ctx, sess); err != nil {
		t.Fatalf("PutSession() error = %v", err)
	}
	again, err := s.EnsureSession(ctx, 101, "Alice", "alice")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if again.State != StateVerified {
		t.Fatalf("state = %q, want %q", again.State, StateVerified)
	}
}

func TestThreadBindingIsUniqueAcrossSessions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureSession(ctx, 1, "A", "a"); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if _, err := s.EnsureSession(ctx, 2, "B", "b"); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}

	if err := s.BindThread(ctx, 1, 555); err != nil {
		t.Fatalf("BindThread() error = %v", err)
	}
	if err := s.BindThread(ctx, 2, 555); err == nil {
		t.Fatalf("BindThread() expected unique-index violation for stolen thread")
	}

	sess, ok, err := s.UserByThread(ctx, 555)
	if err != nil {
		t.Fatalf("UserByThread() error = %v", err)
	}
	if !ok || sess.UserID != 1 {
		t.Fatalf("UserByThread() = user %d ok=%v, want user 1", sess.UserID, ok)
	}
}

func TestClearThreadReleasesReverseLookup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.EnsureSession(ctx, 7, "G", "g"); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if err := s.BindThread(ctx, 7, 900); err != nil {
		t.Fatalf("BindThread() error = %v", err)
	}
	if err := s.ClearThread(ctx, 7); err != nil {
		t.Fatalf("ClearThread() error = %v", err)
	}

	if _, ok, _ := s.UserByThread(ctx, 900); ok {
		t.Fatalf("UserByThread() resolved a cleared binding")
	}

	// The freed thread id can be bound by someone else.
	if _, err := s.EnsureSession(ctx, 8, "H", "h"); err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if err := s.BindThread(ctx, 8, 900); err != nil {
		t.Fatalf("BindThread() after clear error = %v", err)
	}
}

func TestLedgerUpsertKeepsKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	sentAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if err := s.PutLedger(ctx, LedgerEntry{UserID: 5, MessageID: 42, Text: "A", SentAt: sentAt}); err != nil {
		t.Fatalf("PutLedger() error = %v", err)
	}
	if err := s.PutLedger(ctx, LedgerEntry{UserID: 5, MessageID: 42, Text: "B", SentAt: sentAt}); err != nil {
		t.Fatalf("PutLedger() overwrite error = %v", err)
	}

	entry, ok, err := s.GetLedger(ctx, 5, 42)
	if err != nil {
		t.Fatalf("GetLedger() error = %v", err)
	}
	if !ok {
		t.Fatalf("GetLedger() missing entry")
	}
	if entry.Text != "B" {
		t.Fatalf("text = %q, want %q", entry.Text, "B")
	}
	if !entry.SentAt.Equal(sentAt) {
		t.Fatalf("sentAt = %v, want %v", entry.SentAt, sentAt)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetConfig(ctx, "nope"); err != nil || ok {
		t.Fatalf("GetConfig(missing) = ok=%v err=%v, want miss", ok, err)
	}
	if err := s.SetConfig(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := s.SetConfig(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetConfig() overwrite error = %v", err)
	}
	v, ok, err := s.GetConfig(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("GetConfig() = ok=%v err=%v", ok, err)
	}
	if v != "v2" {
		t.Fatalf("value = %q, want %q", v, "v2")
	}
}
