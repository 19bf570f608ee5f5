package model

import (
	"errors"
	"testing"
)

func TestCanTransition_MatchesTable(t *testing.T) {
	allowed := map[[2]MemoStatus]bool{
		{MemoStatusPending, MemoStatusInProgress}:   true,
		{MemoStatusPending, MemoStatusClosed}:       true,
		{MemoStatusInProgress, MemoStatusCompleted}: true,
		{MemoStatusInProgress, MemoStatusClosed}:    true,
		{MemoStatusCompleted, MemoStatusClosed}:     true,
		{MemoStatusExpired, MemoStatusClosed}:       true,
	}

	// 全ての組み合わせを網羅する
	for _, from := range MemoStatuses() {
		for _, to := range MemoStatuses() {
			want := allowed[[2]MemoStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_ClosedIsTerminal(t *testing.T) {
	for _, to := range MemoStatuses() {
		if CanTransition(MemoStatusClosed, to) {
			t.Errorf("CanTransition(closed, %s) = true, want false", to)
		}
	}
	if got := AllowedTransitions(MemoStatusClosed); len(got) != 0 {
		t.Errorf("AllowedTransitions(closed) = %v, want empty", got)
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	if CanTransition("archived", MemoStatusClosed) {
		t.Error("unknown from status should not transition")
	}
	if CanTransition(MemoStatusPending, "archived") {
		t.Error("unknown to status should not transition")
	}
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	got := AllowedTransitions(MemoStatusPending)
	got[0] = MemoStatusExpired

	again := AllowedTransitions(MemoStatusPending)
	if again[0] != MemoStatusInProgress {
		t.Errorf("transition table was modified through returned slice: %v", again)
	}
}

func TestParseMemoStatus(t *testing.T) {
	s, err := ParseMemoStatus("in_progress")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if s != MemoStatusInProgress {
		t.Errorf("status = %q, want %q", s, MemoStatusInProgress)
	}

	_, err = ParseMemoStatus("done")
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if vErr.Field != "status" {
		t.Errorf("Field = %q, want %q", vErr.Field, "status")
	}
}
