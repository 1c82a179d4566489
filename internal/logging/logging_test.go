package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/YorickdeJong/energy-contracts/internal/common"
)

func TestNewWithWriterLevels(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		debugSeen bool
	}{
		{"debug text", Config{Level: "debug", Format: "text"}, true},
		{"info json", Config{Level: "info", Format: "json"}, false},
		{"default level", Config{Level: "bogus", Format: "json"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, tt.cfg)
			logger.Debug("debug.event")
			if got := strings.Contains(buf.String(), "debug.event"); got != tt.debugSeen {
				t.Errorf("Expected debug visible=%v, got %v", tt.debugSeen, got)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, Config{Level: "info", Format: "json"})

	uid := uuid.New()
	ctx := common.WithRequestID(context.Background(), "req-123")
	ctx = common.WithActor(ctx, common.Actor{UserID: uid, Role: "landlord"})

	FromContext(ctx, base).Info("upload.accepted")
	out := buf.String()
	if !strings.Contains(out, `"request_id":"req-123"`) {
		t.Errorf("Expected request_id in log, got %s", out)
	}
	if !strings.Contains(out, uid.String()) {
		t.Errorf("Expected user_id in log, got %s", out)
	}
}

func TestTruncate(t *testing.T) {
	if Truncate("abc", 5) != "abc" {
		t.Error("short strings are unchanged")
	}
	if got := Truncate("abcdef", 3); got != "abc...(truncated)" {
		t.Errorf("unexpected %q", got)
	}
}
