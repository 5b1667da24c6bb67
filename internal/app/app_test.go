package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
)

func TestClose_EmptyApp(t *testing.T) {
	a := &App{}
	if err := a.Close(); err != nil {
		t.Errorf("Close on empty app returned error: %v", err)
	}
}

func TestClose_PropagatesShutdownError(t *testing.T) {
	want := errors.New("flush failed")
	a := &App{
		Logger:       slog.New(slog.DiscardHandler),
		otelShutdown: func(context.Context) error { return want },
	}
	if err := a.Close(); !errors.Is(err, want) {
		t.Errorf("Close = %v, want %v", err, want)
	}
}
