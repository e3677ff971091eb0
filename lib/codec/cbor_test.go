// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
	"time"
)

// sampleRecord is a representative on-disk state record using cbor
// struct tags (the convention for CBOR-only types).
type sampleRecord struct {
	BundleID string    `cbor:"bundle_id"`
	Version  string    `cbor:"version"`
	Deadline time.Time `cbor:"deadline"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRecord{
		BundleID: "b-7f3a",
		Version:  "2.1.0",
		Deadline: time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("Marshal produced empty output")
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.BundleID != original.BundleID || decoded.Version != original.Version {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if !decoded.Deadline.Equal(original.Deadline) {
		t.Errorf("deadline roundtrip mismatch: got %v, want %v", decoded.Deadline, original.Deadline)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	record := sampleRecord{BundleID: "b-1", Version: "1.0.0"}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same record produced different encodings")
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// A record written by a newer binary with an extra field must
	// still decode.
	data, err := Marshal(map[string]any{
		"bundle_id": "b-2",
		"version":   "3.0.0",
		"extra":     "future field",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.BundleID != "b-2" {
		t.Errorf("BundleID = %q, want %q", decoded.BundleID, "b-2")
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer

	encoder := NewEncoder(&buffer)
	records := []sampleRecord{
		{BundleID: "b-1", Version: "1.0.0"},
		{BundleID: "b-2", Version: "1.1.0"},
	}
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i := range records {
		var decoded sampleRecord
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode record %d: %v", i, err)
		}
		if decoded.BundleID != records[i].BundleID {
			t.Errorf("record %d: BundleID = %q, want %q", i, decoded.BundleID, records[i].BundleID)
		}
	}
}
