package sink

import (
	"NetVerdict/internal/model"
	"context"
	"errors"
	"testing"
)

type recordingWriter struct {
	writes int
	closed bool
	err    error
}

func (w *recordingWriter) Write(context.Context, *model.BatchResult) error {
	w.writes++
	return w.err
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestMulti_WritesToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &recordingWriter{}, &recordingWriter{err: boom}, &recordingWriter{}
	m := NewMulti(a, b, c)

	err := m.Write(context.Background(), &model.BatchResult{})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected joined error to wrap boom, got %v", err)
	}
	if a.writes != 1 || b.writes != 1 || c.writes != 1 {
		t.Errorf("Expected every writer to be called once, got %d %d %d", a.writes, b.writes, c.writes)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !a.closed || !b.closed || !c.closed {
		t.Error("Expected every writer to be closed")
	}
}

func TestNewMulti_SingleWriterUnwrapped(t *testing.T) {
	w := &recordingWriter{}
	if got := NewMulti(w); got != w {
		t.Errorf("Expected single writer to be returned as is, got %T", got)
	}
}
