package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestViewBeforeActionFinishes(t *testing.T) {
	m := model{title: "migrate up", action: func(context.Context) ([]string, error) { return nil, nil }}
	view := m.View()
	if !strings.Contains(view, "migrate up") {
		t.Fatalf("view must show the title, got %q", view)
	}
	if !strings.Contains(view, "Running") {
		t.Fatalf("expected running view, got %q", view)
	}
}

func TestUpdateOnActionSuccess(t *testing.T) {
	m := model{title: "seed apply"}
	updated, cmd := m.Update(actionMsg{details: []string{"created user dev@example.com"}})
	done := updated.(model)
	if !done.done || done.err != nil {
		t.Fatalf("unexpected state after success: %+v", done)
	}
	if cmd == nil {
		t.Fatal("expected quit command after the action finishes")
	}
	view := done.View()
	if !strings.Contains(view, "OK") || !strings.Contains(view, "created user dev@example.com") {
		t.Fatalf("expected ok view with details, got %q", view)
	}
}

func TestUpdateOnActionFailure(t *testing.T) {
	m := model{title: "migrate up"}
	updated, _ := m.Update(actionMsg{err: errors.New("dirty schema at version 3")})
	done := updated.(model)
	if !done.done || done.err == nil {
		t.Fatalf("unexpected state after failure: %+v", done)
	}
	if view := done.View(); !strings.Contains(view, "FAILED: dirty schema at version 3") {
		t.Fatalf("expected failure view, got %q", view)
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := model{title: "seed apply"}
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command on ctrl+c")
	}
}
