package fanout

import (
	"encoding/json"
	"testing"
)

type testPayload struct {
	GameID string  `json:"game_id"`
	Price  float64 `json:"price"`
}

func TestMarshalAndUnmarshalEnvelopeRoundTrip(t *testing.T) {
	data, err := MarshalMessage("prices.g1", testPayload{GameID: "g1", Price: 0.55})
	if err != nil {
		t.Fatalf("MarshalMessage() error: %v", err)
	}

	env, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope() error: %v", err)
	}
	if env.Channel != "prices.g1" {
		t.Errorf("Channel = %q, want prices.g1", env.Channel)
	}
	if env.Timestamp.IsZero() {
		t.Error("expected a non-zero Timestamp")
	}

	var got testPayload
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if got.GameID != "g1" || got.Price != 0.55 {
		t.Errorf("payload = %+v, want GameID=g1 Price=0.55", got)
	}
}

func TestUnmarshalEnvelopeRejectsMalformedJSON(t *testing.T) {
	if _, err := UnmarshalEnvelope([]byte("not json")); err == nil {
		t.Error("expected an error for malformed envelope JSON")
	}
}

func TestDecodersUsesRegisteredDecoder(t *testing.T) {
	decoders := Decoders{
		"prices.g1": func(payload json.RawMessage) (any, error) {
			var p testPayload
			err := json.Unmarshal(payload, &p)
			return p, err
		},
	}

	raw, _ := json.Marshal(testPayload{GameID: "g1", Price: 0.6})
	got := decoders.decode("prices.g1", raw)
	p, ok := got.(testPayload)
	if !ok {
		t.Fatalf("decode() returned %T, want testPayload", got)
	}
	if p.GameID != "g1" || p.Price != 0.6 {
		t.Errorf("decoded payload = %+v, want GameID=g1 Price=0.6", p)
	}
}

func TestDecodersFallsBackToRawJSONForUnregisteredChannel(t *testing.T) {
	decoders := Decoders{}
	raw := json.RawMessage(`{"x":1}`)
	got := decoders.decode("unregistered.channel", raw)
	rm, ok := got.(json.RawMessage)
	if !ok {
		t.Fatalf("decode() returned %T, want json.RawMessage", got)
	}
	if string(rm) != `{"x":1}` {
		t.Errorf("raw payload = %s, want passthrough of the input", string(rm))
	}
}

func TestDecodersFallsBackWhenDecoderErrors(t *testing.T) {
	decoders := Decoders{
		"broken": func(payload json.RawMessage) (any, error) {
			return nil, json.Unmarshal(payload, &struct{ X int }{})
		},
	}
	raw := json.RawMessage(`not an object`)
	got := decoders.decode("broken", raw)
	if _, ok := got.(json.RawMessage); !ok {
		t.Errorf("decode() should fall back to raw payload when the registered decoder errors, got %T", got)
	}
}
