package store

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionLifecycleRecorded(t *testing.T) {
	s := newTestStore(t)

	started := time.Now().UTC().Add(-time.Minute).Truncate(time.Second)
	if err := s.SessionStarted("sess-1", "https://example.com/a.mp4", "syphon:texrelay-out", started); err != nil {
		t.Fatalf("SessionStarted: %v", err)
	}

	records, err := s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].SessionID != "sess-1" {
		t.Errorf("unexpected session id %q", records[0].SessionID)
	}
	if records[0].EndedAt != nil {
		t.Error("expected open session to have no end time")
	}

	ended := time.Now().UTC().Truncate(time.Second)
	if err := s.SessionEnded("sess-1", ended, "stopped"); err != nil {
		t.Fatalf("SessionEnded: %v", err)
	}

	records, err = s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions after end: %v", err)
	}
	if records[0].EndedAt == nil {
		t.Fatal("expected end time recorded")
	}
	if records[0].EndReason != "stopped" {
		t.Errorf("expected reason stopped, got %q", records[0].EndReason)
	}
}

func TestSessionEndedUnknownIDIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.SessionEnded("never-started", time.Now(), "stopped"); err != nil {
		t.Errorf("unknown session end should not error, got %v", err)
	}
}

func TestRecentSessionsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := s.SessionStarted(id, "src-"+id, "out", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("SessionStarted %s: %v", id, err)
		}
	}

	records, err := s.RecentSessions(3)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].SessionID != "e" || records[2].SessionID != "c" {
		t.Errorf("expected newest first, got %s..%s", records[0].SessionID, records[2].SessionID)
	}
}

func TestPruneBefore(t *testing.T) {
	s := newTestStore(t)

	old := time.Now().UTC().Add(-48 * time.Hour)
	recent := time.Now().UTC()
	if err := s.SessionStarted("old", "src", "out", old); err != nil {
		t.Fatalf("SessionStarted old: %v", err)
	}
	if err := s.SessionStarted("new", "src", "out", recent); err != nil {
		t.Fatalf("SessionStarted new: %v", err)
	}

	pruned, err := s.PruneBefore(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneBefore: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned row, got %d", pruned)
	}

	records, err := s.RecentSessions(10)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "new" {
		t.Errorf("expected only the recent session to remain, got %v", records)
	}
}
