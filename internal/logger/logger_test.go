package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewWithOutputJSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("debug", &buf)

	log.WithField("user_id", "42").Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	for _, key := range []string{"timestamp", "level", "message", "user_id"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("Expected key %q in %v", key, entry)
		}
	}
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	log := NewWithOutput("loud", &bytes.Buffer{})
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("Expected info level, got %s", log.GetLevel())
	}
}
