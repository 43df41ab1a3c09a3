package logx

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetCapturesEvents(t *testing.T) {
	prev := L()
	defer Set(prev)

	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core).Sugar())

	L().Infow("send_success", "to", "a@x.com")
	L().Debugw("dropped_below_level")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(entries))
	}
	if entries[0].Message != "send_success" || entries[0].ContextMap()["to"] != "a@x.com" {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestInitHonoursLevel(t *testing.T) {
	prev := L()
	defer Set(prev)

	t.Setenv("LOG_LEVEL", "error")
	Init()
	if L().Desugar().Core().Enabled(zap.WarnLevel) {
		t.Fatal("warn must be disabled at LOG_LEVEL=error")
	}
}
