package factory

import (
	"NetVerdict/internal/config"
	"NetVerdict/internal/model"
	"context"
	"testing"

	"go.uber.org/zap"
)

type nopWriter struct{ closed *int }

func (w nopWriter) Write(context.Context, *model.BatchResult) error { return nil }
func (w nopWriter) Close() error {
	*w.closed++
	return nil
}

func TestCreateWriters(t *testing.T) {
	closed := 0
	RegisterWriter("test-nop", func(config.WriterDef, *config.Config, *zap.Logger) (model.Writer, error) {
		return nopWriter{closed: &closed}, nil
	})

	cfg := config.Default()
	cfg.Writers = []config.WriterDef{
		{Type: "test-nop", Enabled: true},
		{Type: "test-nop", Enabled: false},
	}
	writers, err := CreateWriters(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("CreateWriters failed: %v", err)
	}
	if len(writers) != 1 {
		t.Fatalf("Expected 1 enabled writer, got %d", len(writers))
	}

	cfg.Writers = append(cfg.Writers, config.WriterDef{Type: "does-not-exist", Enabled: true})
	if _, err := CreateWriters(cfg, zap.NewNop()); err == nil {
		t.Fatal("Expected an error for an unknown writer type")
	}
	if closed != 1 {
		t.Errorf("Expected the already built writer to be closed, got %d closes", closed)
	}
}

func TestRegisterWriter_DuplicatePanics(t *testing.T) {
	RegisterWriter("test-dup", func(config.WriterDef, *config.Config, *zap.Logger) (model.Writer, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Fatal("Expected duplicate registration to panic")
		}
	}()
	RegisterWriter("test-dup", func(config.WriterDef, *config.Config, *zap.Logger) (model.Writer, error) { return nil, nil })
}

func TestResolve(t *testing.T) {
	if got := resolve("models", "rf.json"); got != "models/rf.json" {
		t.Errorf("unexpected path %q", got)
	}
	if got := resolve("models", "/abs/rf.json"); got != "/abs/rf.json" {
		t.Errorf("unexpected path %q", got)
	}
}
