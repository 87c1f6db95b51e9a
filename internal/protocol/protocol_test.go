package protocol

import (
	"encoding/json"
	"math/rand"
	"testing"

	"pongserver/internal/engine"
)

func TestDecodeSplitsTypeAndPayload(t *testing.T) {
	raw := []byte(`{"type":"SendPaddleInput","payload":{"targetY":42.5}}`)
	messageType, payload, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if messageType != TypeSendPaddleInput {
		t.Fatalf("expected type %q, got %q", TypeSendPaddleInput, messageType)
	}
	var p SendPaddleInputPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.TargetY != 42.5 {
		t.Fatalf("expected targetY 42.5, got %v", p.TargetY)
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	if _, _, err := Decode([]byte(`{"payload":{}}`)); err == nil {
		t.Fatalf("expected error for missing type")
	}
}

func TestEncodeWrapsPayloadInEnvelope(t *testing.T) {
	raw, err := Encode(TypePong, PongPayload{UTCTimestamp: "2026-08-06T00:00:00Z"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var envelope struct {
		Type    string      `json:"type"`
		Payload PongPayload `json:"payload"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Type != TypePong || envelope.Payload.UTCTimestamp != "2026-08-06T00:00:00Z" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}

func TestGameUpdateFromStateMirrorsFields(t *testing.T) {
	state := engine.NewGameState(rand.New(rand.NewSource(1)))
	state.LeftScore = 3
	state.RightReady = true

	payload := GameUpdateFromState(state)

	if payload.LeftScore != 3 || !payload.RightPlayerReady {
		t.Fatalf("unexpected conversion: %+v", payload)
	}
	if payload.Ball.X != state.Ball.X || payload.LeftPaddle.Y != state.Left.Y {
		t.Fatalf("expected ball/paddle fields to mirror state, got %+v", payload)
	}
}
