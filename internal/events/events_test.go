package events

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestRecordAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	recorder, err := NewRecorder(dir)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	if err := recorder.Record(CodeCommandDetected, "kill switch", map[string]any{"confidence": 0.91}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := recorder.Record(CodeShutdownCancelled, "operator", nil); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	file, err := os.Open(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer file.Close()

	var decoded []Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event Event
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			t.Fatalf("bad audit line: %v", err)
		}
		decoded = append(decoded, event)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(decoded) != 2 {
		t.Fatalf("recorded %d events", len(decoded))
	}
	if decoded[0].Code != CodeCommandDetected || decoded[0].Detail != "kill switch" {
		t.Fatalf("first event = %+v", decoded[0])
	}
	if decoded[0].ID == "" || decoded[0].Timestamp.IsZero() {
		t.Fatal("event identity fields missing")
	}
	if decoded[1].Code != CodeShutdownCancelled {
		t.Fatalf("second event = %+v", decoded[1])
	}
}

func TestRecorderAppendsAcrossReopens(t *testing.T) {
	dir := t.TempDir()

	for i := 0; i < 2; i++ {
		recorder, err := NewRecorder(dir)
		if err != nil {
			t.Fatalf("NewRecorder: %v", err)
		}
		if err := recorder.Record(CodeHelperConnected, "", nil); err != nil {
			t.Fatalf("Record: %v", err)
		}
		if err := recorder.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "audit.jsonl"))
	if err != nil {
		t.Fatalf("read audit: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("audit has %d lines, want 2", lines)
	}
}

func TestNopRecorderDropsEvents(t *testing.T) {
	recorder := Nop()
	if err := recorder.Record(CodeWatchdogFailure, "silent", nil); err != nil {
		t.Fatalf("nop record: %v", err)
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("nop close: %v", err)
	}
}
