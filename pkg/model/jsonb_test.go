package model

import (
	"encoding/json"
	"testing"
)

func TestJSONBValueAndScan(t *testing.T) {
	original := JSONB{"groups": []interface{}{"eng"}, "send_welcome_email": true}

	value, err := original.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}

	data, ok := value.([]byte)
	if !ok {
		t.Fatalf("expected []byte value, got %T", value)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal value error: %v", err)
	}

	if decoded["send_welcome_email"] != true {
		t.Fatalf("expected send_welcome_email true, got %v", decoded["send_welcome_email"])
	}

	var scanned JSONB
	if err := scanned.Scan(data); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if scanned["send_welcome_email"] != true {
		t.Fatalf("expected scanned flag true, got %v", scanned["send_welcome_email"])
	}

	var fromString JSONB
	if err := fromString.Scan(string(data)); err != nil {
		t.Fatalf("Scan(string) error: %v", err)
	}
	if len(fromString) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(fromString))
	}
}

func TestJSONBScanRejectsUnknownType(t *testing.T) {
	var value JSONB
	if err := value.Scan(42); err == nil {
		t.Fatalf("expected error scanning int")
	}
}

func TestJSONBClone(t *testing.T) {
	original := JSONB{"a": 1}
	cp := original.Clone()
	cp["a"] = 2
	if original["a"] != 1 {
		t.Fatalf("clone mutated original: %v", original)
	}
	if JSONB(nil).Clone() != nil {
		t.Fatalf("expected nil clone of nil map")
	}
}

func TestJSONBGormDataType(t *testing.T) {
	value := JSONB{"ok": true}
	if value.GormDataType() != "jsonb" {
		t.Fatalf("expected jsonb data type, got %q", value.GormDataType())
	}
}
