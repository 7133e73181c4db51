package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/bgproces/internal/ir"
)

const (
	exportA = "{\n    \"BGCode\": \"0344\",\n    \"BevoegdGezag\": \"Gemeente\"\n}"
	exportB = "{\n    \"BGCode\": \"0363\",\n    \"BevoegdGezag\": \"Gemeente\"\n}"
)

func TestAppendExport_AssignsIncreasingSeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seqA, err := s.AppendExport(ctx, "session-1", exportA)
	if err != nil {
		t.Fatalf("AppendExport(A) failed: %v", err)
	}
	seqB, err := s.AppendExport(ctx, "session-1", exportB)
	if err != nil {
		t.Fatalf("AppendExport(B) failed: %v", err)
	}

	if seqB <= seqA {
		t.Errorf("seq did not increase: A=%d B=%d", seqA, seqB)
	}
}

func TestAppendExport_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	first, err := s.AppendExport(ctx, "session-1", exportA)
	if err != nil {
		t.Fatalf("first AppendExport() failed: %v", err)
	}
	second, err := s.AppendExport(ctx, "session-1", exportA)
	if err != nil {
		t.Fatalf("second AppendExport() failed: %v", err)
	}

	if first != second {
		t.Errorf("re-appending returned seq %d, want %d", second, first)
	}

	history, err := s.History(ctx, "session-1")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("History() has %d records, want 1", len(history))
	}
}

func TestAppendExport_SameExportOtherSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seq1, err := s.AppendExport(ctx, "session-1", exportA)
	if err != nil {
		t.Fatalf("AppendExport() failed: %v", err)
	}
	seq2, err := s.AppendExport(ctx, "session-2", exportA)
	if err != nil {
		t.Fatalf("AppendExport() failed: %v", err)
	}
	if seq1 == seq2 {
		t.Error("sessions share a journal row")
	}

	found, err := s.FindByFingerprint(ctx, ir.Fingerprint(exportA))
	if err != nil {
		t.Fatalf("FindByFingerprint() failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("FindByFingerprint() returned %d records, want 2", len(found))
	}
	if found[0].SessionID != "session-1" || found[1].SessionID != "session-2" {
		t.Errorf("unexpected order: %+v", found)
	}
}

func TestAppendExport_Validation(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendExport(ctx, "", exportA); err == nil {
		t.Error("expected error for empty session id")
	}
	if _, err := s.AppendExport(ctx, "session-1", ""); !errors.Is(err, ErrEmptyExport) {
		t.Errorf("expected ErrEmptyExport, got %v", err)
	}
}

func TestHistory_Order(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, doc := range []string{exportA, exportB} {
		if _, err := s.AppendExport(ctx, "session-1", doc); err != nil {
			t.Fatalf("AppendExport() failed: %v", err)
		}
	}

	history, err := s.History(ctx, "session-1")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("History() has %d records, want 2", len(history))
	}
	if history[0].Document != exportA || history[1].Document != exportB {
		t.Errorf("History() out of order: %+v", history)
	}
	if history[0].Fingerprint != ir.Fingerprint(exportA) {
		t.Errorf("fingerprint = %q, want %q", history[0].Fingerprint, ir.Fingerprint(exportA))
	}
}

func TestHistory_UnknownSession(t *testing.T) {
	s := createTestStore(t)

	history, err := s.History(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Errorf("History() = %#v, want empty slice", history)
	}
}

func TestLatest(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Latest(ctx, "session-1"); err != nil || ok {
		t.Fatalf("Latest() on empty journal = ok %v, err %v", ok, err)
	}

	for _, doc := range []string{exportA, exportB} {
		if _, err := s.AppendExport(ctx, "session-1", doc); err != nil {
			t.Fatalf("AppendExport() failed: %v", err)
		}
	}

	rec, ok, err := s.Latest(ctx, "session-1")
	if err != nil || !ok {
		t.Fatalf("Latest() = ok %v, err %v", ok, err)
	}
	if rec.Document != exportB {
		t.Errorf("Latest() = %q, want %q", rec.Document, exportB)
	}
}

func TestSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	appends := []struct{ session, doc string }{
		{"session-b", exportA},
		{"session-a", exportA},
		{"session-a", exportB},
	}
	for _, a := range appends {
		if _, err := s.AppendExport(ctx, a.session, a.doc); err != nil {
			t.Fatalf("AppendExport() failed: %v", err)
		}
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("Sessions() returned %d, want 2", len(sessions))
	}
	if sessions[0].ID != "session-a" || sessions[0].Exports != 2 || sessions[0].LatestSeq != 3 {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
	if sessions[1].ID != "session-b" || sessions[1].Exports != 1 || sessions[1].LatestSeq != 1 {
		t.Errorf("sessions[1] = %+v", sessions[1])
	}
}

func TestRecorder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	record := s.Recorder(ctx, "session-1", logger)
	record(exportA)
	record(exportB)
	record("")

	history, err := s.History(ctx, "session-1")
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("History() has %d records, want 2", len(history))
	}
	if !strings.Contains(logs.String(), "journal export failed") {
		t.Errorf("expected failure log, got %q", logs.String())
	}
}

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.AppendExport(ctx, "session-1", exportA); err != nil {
		t.Fatalf("AppendExport() failed: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	rec, ok, err := s.Latest(ctx, "session-1")
	if err != nil || !ok {
		t.Fatalf("Latest() = ok %v, err %v", ok, err)
	}
	if rec.Document != exportA {
		t.Errorf("Latest() = %q, want %q", rec.Document, exportA)
	}
}
