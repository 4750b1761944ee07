// Package wire implements the version-1 envelope protocol used to frame every
// message exchanged between the bridge and a voice-telephony peer.
//
// An envelope is a small JSON object carrying a protocol version, a type
// (request, response, or event), correlation and sequencing fields, and an
// operation-specific payload. [Parse] turns raw frame bytes into an
// [Envelope]; [Envelope.Marshal] does the reverse. The operation set the
// bridge dispatches on is closed — see [Operations]; [Parse] itself accepts
// any non-empty op string.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// Type classifies an envelope as a request, a response, or an event.
type Type string

const (
	TypeRequest  Type = "req"
	TypeResponse Type = "res"
	TypeEvent    Type = "evt"
)

func (t Type) valid() bool {
	switch t {
	case TypeRequest, TypeResponse, TypeEvent:
		return true
	default:
		return false
	}
}

// Operation names the closed set of operations the bridge understands.
// Any other op string is answered with an "unsupported_op" error response by
// the connection monitor's dispatch (the codec itself only requires op to be
// a non-empty string).
type Operation string

const (
	OpSystemHello   Operation = "system.hello"
	OpSystemPing    Operation = "system.ping"
	OpSessionStart  Operation = "session.start"
	OpSessionUpdate Operation = "session.update"
	OpSessionEnd    Operation = "session.end"
)

// Operations lists every operation name the bridge accepts.
var Operations = []Operation{OpSystemHello, OpSystemPing, OpSessionStart, OpSessionUpdate, OpSessionEnd}

// IsSupported reports whether op names one of [Operations].
func IsSupported(op string) bool {
	for _, o := range Operations {
		if string(o) == op {
			return true
		}
	}
	return false
}

// protocolVersion is the only envelope version this package accepts.
const protocolVersion = 1

var (
	// ErrMalformedEnvelope is returned by [Parse] when a frame is not valid
	// JSON, is not an object, or is missing/misshapes a required field.
	ErrMalformedEnvelope = errors.New("wire: malformed envelope")

	// ErrUnsupportedVersion is returned by [Parse] when the envelope's v
	// field is present and numeric but not equal to the supported version.
	ErrUnsupportedVersion = errors.New("wire: unsupported envelope version")
)

// Envelope is the in-memory representation of a single frame.
//
// SessionID is nil when the field was absent or JSON null in the source
// frame. ReqID is empty for events and may be empty for malformed requests
// that [Parse] has already rejected — a zero-value Envelope is never
// returned from Parse without an error.
type Envelope struct {
	V         int
	Type      Type
	ReqID     string
	SessionID *string
	Seq       int64
	TS        string
	Op        string
	Payload   map[string]any
}

// Parse decodes raw frame bytes into an [Envelope], enforcing every
// structural invariant from the wire format: valid JSON object, version 1,
// a recognised type, string op/ts, a finite seq, an object (or absent)
// payload, and a session_id that is a string, null, or absent. req_id must
// be a non-empty string when type is request or response.
func Parse(raw []byte) (*Envelope, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: invalid json: %v", ErrMalformedEnvelope, err)
	}

	vRaw, ok := m["v"]
	if !ok {
		return nil, fmt.Errorf("%w: missing v", ErrMalformedEnvelope)
	}
	vNum, ok := vRaw.(float64)
	if !ok {
		return nil, fmt.Errorf("%w: v is not numeric", ErrMalformedEnvelope)
	}
	if int(vNum) != protocolVersion {
		return nil, fmt.Errorf("%w: v=%v", ErrUnsupportedVersion, vRaw)
	}

	typStr, ok := m["type"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: type is not a string", ErrMalformedEnvelope)
	}
	typ := Type(typStr)
	if !typ.valid() {
		return nil, fmt.Errorf("%w: type %q not in {req,res,evt}", ErrMalformedEnvelope, typStr)
	}

	op, ok := m["op"].(string)
	if !ok || op == "" {
		return nil, fmt.Errorf("%w: op is not a non-empty string", ErrMalformedEnvelope)
	}

	ts, ok := m["ts"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: ts is not a string", ErrMalformedEnvelope)
	}

	seqRaw, ok := m["seq"]
	if !ok {
		return nil, fmt.Errorf("%w: missing seq", ErrMalformedEnvelope)
	}
	seqNum, ok := seqRaw.(float64)
	if !ok || math.IsNaN(seqNum) || math.IsInf(seqNum, 0) {
		return nil, fmt.Errorf("%w: seq is not a finite number", ErrMalformedEnvelope)
	}

	var sessionID *string
	if raw, present := m["session_id"]; present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: session_id is not string|null", ErrMalformedEnvelope)
		}
		sessionID = &s
	}

	var reqID string
	if raw, present := m["req_id"]; present && raw != nil {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%w: req_id is not a string", ErrMalformedEnvelope)
		}
		reqID = s
	}
	if (typ == TypeRequest || typ == TypeResponse) && reqID == "" {
		return nil, fmt.Errorf("%w: req_id required for type %q", ErrMalformedEnvelope, typ)
	}

	payload := map[string]any{}
	if raw, present := m["payload"]; present && raw != nil {
		p, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: payload is not an object", ErrMalformedEnvelope)
		}
		payload = p
	}

	return &Envelope{
		V:         protocolVersion,
		Type:      typ,
		ReqID:     reqID,
		SessionID: sessionID,
		Seq:       int64(seqNum),
		TS:        ts,
		Op:        op,
		Payload:   payload,
	}, nil
}

// wireFormat mirrors the exact on-wire field names and nullability rules;
// it exists only as the Marshal target so Envelope itself can
// stay free of json tags.
type wireFormat struct {
	V         int            `json:"v"`
	Type      Type           `json:"type"`
	ReqID     string         `json:"req_id,omitempty"`
	SessionID *string        `json:"session_id,omitempty"`
	Seq       int64          `json:"seq"`
	TS        string         `json:"ts"`
	Op        string         `json:"op"`
	Payload   map[string]any `json:"payload"`
}

// Marshal encodes e into its on-wire JSON form.
func (e *Envelope) Marshal() ([]byte, error) {
	wf := wireFormat{
		V:         protocolVersion,
		Type:      e.Type,
		ReqID:     e.ReqID,
		SessionID: e.SessionID,
		Seq:       e.Seq,
		TS:        e.TS,
		Op:        e.Op,
		Payload:   e.Payload,
	}
	if wf.Payload == nil {
		wf.Payload = map[string]any{}
	}
	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal envelope: %w", err)
	}
	return data, nil
}

// NewRequest builds a request envelope with the current timestamp.
func NewRequest(op Operation, reqID string, sessionID *string, seq int64, payload map[string]any) *Envelope {
	return &Envelope{
		V:         protocolVersion,
		Type:      TypeRequest,
		ReqID:     reqID,
		SessionID: sessionID,
		Seq:       seq,
		TS:        nowISO8601(),
		Op:        string(op),
		Payload:   payload,
	}
}

// NewEvent builds an event envelope with the current timestamp. Events never
// carry a req_id.
func NewEvent(op Operation, sessionID *string, seq int64, payload map[string]any) *Envelope {
	return &Envelope{
		V:         protocolVersion,
		Type:      TypeEvent,
		SessionID: sessionID,
		Seq:       seq,
		TS:        nowISO8601(),
		Op:        string(op),
		Payload:   payload,
	}
}

// Reply builds a response envelope answering req. It copies req_id,
// session_id, and op from req, per the envelope invariant that responses
// echo the request they answer.
func (req *Envelope) Reply(seq int64, payload map[string]any) *Envelope {
	return &Envelope{
		V:         protocolVersion,
		Type:      TypeResponse,
		ReqID:     req.ReqID,
		SessionID: req.SessionID,
		Seq:       seq,
		TS:        nowISO8601(),
		Op:        req.Op,
		Payload:   payload,
	}
}

// OKPayload builds a success response payload: { ok: true, result: result }.
func OKPayload(result map[string]any) map[string]any {
	if result == nil {
		result = map[string]any{}
	}
	return map[string]any{"ok": true, "result": result}
}

// ErrPayload builds a failure response payload:
// { ok: false, error: { code, message, details? } }.
func ErrPayload(code, message string, details any) map[string]any {
	e := map[string]any{"code": code, "message": message}
	if details != nil {
		e["details"] = details
	}
	return map[string]any{"ok": false, "error": e}
}

// nowISO8601 is a var so tests can override it for deterministic timestamps.
var nowISO8601 = func() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
