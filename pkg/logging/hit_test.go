package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureHits(t *testing.T) *bytes.Buffer {
	t.Helper()
	originalLogger := log.Logger
	originalWriter := globalHitWriter
	t.Cleanup(func() {
		log.Logger = originalLogger
		globalHitWriter = originalWriter
	})

	var buf bytes.Buffer
	hitWriter := NewHitLevelWriter(&buf)
	log.Logger = zerolog.New(hitWriter)
	SetGlobalHitWriter(hitWriter)
	return &buf
}

func decode(t *testing.T, line []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(line), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v\nOutput: %s", err, string(line))
	}
	return entry
}

func TestHit(t *testing.T) {
	buf := captureHits(t)

	Hit().Kind(FindingKindSecret).Str("type", "AWS Access Key").Int("confidence", 70).Str("file", "https://example.com/app.js").Msg("SECRET")

	entry := decode(t, buf.Bytes())
	if entry["level"] != "hit" {
		t.Errorf("Expected level to be 'hit', got '%v'", entry["level"])
	}
	if entry["kind"] != "secret" {
		t.Errorf("Expected kind 'secret', got '%v'", entry["kind"])
	}
	if entry["type"] != "AWS Access Key" {
		t.Errorf("Expected type 'AWS Access Key', got '%v'", entry["type"])
	}
	if confidence, ok := entry["confidence"].(float64); !ok || confidence != 70 {
		t.Errorf("Expected confidence=70, got '%v'", entry["confidence"])
	}
	if entry["message"] != "SECRET" {
		t.Errorf("Expected message 'SECRET', got '%v'", entry["message"])
	}
	if _, exists := entry["_hit"]; exists {
		t.Error("Internal _hit marker should be removed from output")
	}
}

func TestHitIgnoresGlobalLevel(t *testing.T) {
	buf := captureHits(t)
	originalLevel := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(originalLevel)
	zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	log.Info().Msg("filtered")
	Hit().Kind(FindingKindEndpoint).Bool("explicit", true).Msg("ENDPOINT")

	entry := decode(t, buf.Bytes())
	if entry["message"] != "ENDPOINT" {
		t.Errorf("Expected only the hit to be logged, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  zerolog.Level
		expectErr bool
	}{
		{name: "hit", input: "hit", expected: HitLevel},
		{name: "trace", input: "trace", expected: zerolog.TraceLevel},
		{name: "debug", input: "debug", expected: zerolog.DebugLevel},
		{name: "info", input: "info", expected: zerolog.InfoLevel},
		{name: "invalid", input: "loud", expected: zerolog.NoLevel, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			if tt.expectErr != (err != nil) {
				t.Errorf("ParseLevel(%q) error = %v, expectErr %v", tt.input, err, tt.expectErr)
			}
			if level != tt.expected {
				t.Errorf("Expected level %v, got %v", tt.expected, level)
			}
		})
	}
}

func TestHitLevelWriter_Write(t *testing.T) {
	tests := []struct {
		name          string
		markAsHit     bool
		input         string
		expectedLevel string
	}{
		{name: "plain warn", input: `{"level":"warn","message":"slow rule"}` + "\n", expectedLevel: "warn"},
		{name: "marked hit", markAsHit: true, input: `{"level":"error","_hit":true,"message":"SECRET"}` + "\n", expectedLevel: "hit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			writer := NewHitLevelWriter(&buf)
			if tt.markAsHit {
				writer.markNextAsHit()
			}

			if _, err := writer.Write([]byte(tt.input)); err != nil {
				t.Fatalf("Write failed: %v", err)
			}

			entry := decode(t, buf.Bytes())
			if entry["level"] != tt.expectedLevel {
				t.Errorf("Expected level '%s', got '%v'", tt.expectedLevel, entry["level"])
			}
			if _, hasHit := entry["_hit"]; hasHit {
				t.Error("_hit marker must not be written")
			}
		})
	}
}

func TestHitLevelWriter_NonJSONPassthrough(t *testing.T) {
	buf := &bytes.Buffer{}
	writer := NewHitLevelWriter(buf)

	writer.markNextAsHit()
	plainText := []byte("12:00 HIT plain console line\n")
	n, err := writer.Write(plainText)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(plainText) || buf.String() != string(plainText) {
		t.Errorf("expected passthrough of non-JSON, got %q", buf.String())
	}
}

func TestHitLevelWriter_SetOutput(t *testing.T) {
	first, second := &bytes.Buffer{}, &bytes.Buffer{}
	writer := NewHitLevelWriter(first)
	writer.SetOutput(second)

	_, _ = writer.Write([]byte("line\n"))
	if first.Len() != 0 || second.String() != "line\n" {
		t.Errorf("expected output to be redirected, got %q and %q", first.String(), second.String())
	}
}
