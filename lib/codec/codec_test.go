// Copyright 2026 The Atelier Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalDeterministic(t *testing.T) {
	t.Parallel()
	value := map[string]any{
		"zebra": 1,
		"alpha": "text",
		"mid":   []any{"a", "b"},
	}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same value produced different encodings")
	}
}

func TestUnmarshalIntoAnyUsesStringKeys(t *testing.T) {
	t.Parallel()
	data, err := Marshal(map[string]any{"files": map[string]any{"main.py": "code"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	top, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	inner, ok := top["files"].(map[string]any)
	if !ok {
		t.Fatalf("nested type = %T, want map[string]any", top["files"])
	}
	if inner["main.py"] != "code" {
		t.Errorf("nested value = %v, want code", inner["main.py"])
	}
}

func TestEncoderDecoderStream(t *testing.T) {
	t.Parallel()
	type message struct {
		Name  string `cbor:"name"`
		Count int    `cbor:"count"`
	}

	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := range 3 {
		if err := encoder.Encode(message{Name: "m", Count: i}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i := range 3 {
		var decoded message
		if err := decoder.Decode(&decoded); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if decoded.Count != i {
			t.Errorf("message %d count = %d", i, decoded.Count)
		}
	}
}

func TestRawMessageDefersDecoding(t *testing.T) {
	t.Parallel()
	type envelope struct {
		Type    string     `cbor:"type"`
		Payload RawMessage `cbor:"payload"`
	}
	type payload struct {
		Value string `cbor:"value"`
	}

	inner, err := Marshal(payload{Value: "deferred"})
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}
	data, err := Marshal(envelope{Type: "test", Payload: inner})
	if err != nil {
		t.Fatalf("Marshal envelope: %v", err)
	}

	var decoded envelope
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	var decodedPayload payload
	if err := Unmarshal(decoded.Payload, &decodedPayload); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if decodedPayload.Value != "deferred" {
		t.Errorf("payload value = %q, want deferred", decodedPayload.Value)
	}
}
