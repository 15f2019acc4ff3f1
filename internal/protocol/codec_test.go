package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	type payload struct {
		TargetID string `json:"targetId"`
	}

	frame, err := Encode("offer", payload{TargetID: "peer-1"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Event != "offer" {
		t.Errorf("Event = %q, want offer", env.Event)
	}

	var got payload
	if err := env.Unmarshal(&got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.TargetID != "peer-1" {
		t.Errorf("TargetID = %q, want peer-1", got.TargetID)
	}
}

func TestEncodeWithoutPayload(t *testing.T) {
	frame, err := Encode("join-queue", nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(frame), "data") {
		t.Errorf("frame %s should not carry data", frame)
	}

	env, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var v struct{ X int }
	if err := env.Unmarshal(&v); err != nil {
		t.Errorf("Unmarshal of empty payload: %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	testCases := []struct {
		name  string
		frame []byte
	}{
		{"not json", []byte("hello")},
		{"missing event", []byte(`{"data":{}}`)},
		{"too large", make([]byte, MaxEnvelopeSize+1)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.frame); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := Decode([]byte(`{"event":""}`)); !errors.Is(err, ErrMissingEvent) {
		t.Errorf("expected ErrMissingEvent, got %v", err)
	}
}
