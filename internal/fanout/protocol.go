package fanout

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the wire format for messages relayed over the fanout
// WebSocket: a channel name plus its JSON-encoded payload, generalized from
// the old fixed-EventType envelope to the bus's dynamic channel strings
// (§6 channel table) so a fanout process can relay any of them without a
// type switch.
type Envelope struct {
	Channel   string          `json:"channel"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalMessage serializes a channel+payload pair into a JSON Envelope.
func MarshalMessage(channel string, msg any) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{Channel: channel, Timestamp: time.Now(), Payload: payload}
	return json.Marshal(env)
}

// UnmarshalEnvelope deserializes a relayed Envelope, leaving the payload as
// raw JSON — the caller looks up the channel's registered decoder to get a
// concrete type back (see Decoders).
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

// Decoder turns a channel's raw JSON payload back into the concrete type
// its publishers use, so a relayed message round-trips to the same Go type
// bus.Publish would have carried in-process.
type Decoder func(payload json.RawMessage) (any, error)

// Decoders is the channel-name -> Decoder registry a fanout Client consults
// per §6. Callers register one entry per channel they relay; an
// unregistered channel is forwarded as json.RawMessage unchanged.
type Decoders map[string]Decoder

func (d Decoders) decode(channel string, payload json.RawMessage) any {
	if dec, ok := d[channel]; ok {
		if v, err := dec(payload); err == nil {
			return v
		}
	}
	return payload
}
