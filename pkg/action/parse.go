package action

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// fencedBlockPattern matches fenced code blocks, optionally tagged with a
// language (` ```json `), capturing the block body.
var fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")

// candidates returns every substring of reply worth trying as a standalone
// JSON document: the whole reply, then the body of each fenced code block,
// in the order they appear.
func candidates(reply string) []string {
	cands := []string{reply}
	for _, m := range fencedBlockPattern.FindAllStringSubmatch(reply, -1) {
		cands = append(cands, m[1])
	}
	return cands
}

// ParseStructured scans reply for a JSON object shaped { "actions": [...] },
// trying the whole text first and then each fenced code block it contains.
// The first candidate whose every action validates is returned. If no
// candidate parses and validates, ok is false ("not structured") and the
// caller should fall back to prose handling.
func ParseStructured(reply string) (actions []Action, ok bool) {
	for _, cand := range candidates(reply) {
		if acts, err := parseCandidate(cand); err == nil {
			return acts, true
		}
	}
	return nil, false
}

type structuredEnvelope struct {
	Actions []json.RawMessage `json:"actions"`
}

func parseCandidate(cand string) ([]Action, error) {
	var env structuredEnvelope
	if err := json.Unmarshal([]byte(cand), &env); err != nil {
		return nil, fmt.Errorf("action: not a structured envelope: %w", err)
	}
	if env.Actions == nil {
		return nil, fmt.Errorf("action: missing actions array")
	}

	out := make([]Action, 0, len(env.Actions))
	for i, raw := range env.Actions {
		act, err := parseOne(raw)
		if err != nil {
			return nil, fmt.Errorf("action: actions[%d]: %w", i, err)
		}
		out = append(out, act)
	}
	return out, nil
}

func parseOne(raw json.RawMessage) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("not an object: %w", err)
	}

	switch head.Type {
	case "speak":
		return parseSpeak(raw)
	case "collect":
		return parseCollect(raw)
	case "end":
		return parseEnd(raw)
	default:
		return nil, fmt.Errorf("unknown action type %q", head.Type)
	}
}

func parseSpeak(raw json.RawMessage) (Action, error) {
	var s struct {
		MessageID string `json:"message_id"`
		Text      string `json:"text"`
		BargeIn   *bool  `json:"barge_in"`
		Voice     *Voice `json:"voice"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("speak: %w", err)
	}
	if s.Text == "" {
		return nil, fmt.Errorf("speak: text must be non-empty")
	}
	bargeIn := true
	if s.BargeIn != nil {
		bargeIn = *s.BargeIn
	}
	if s.Voice != nil && s.Voice.Name == "" {
		return nil, fmt.Errorf("speak: voice.name must be non-empty when voice is present")
	}
	return Speak{MessageID: s.MessageID, Text: s.Text, BargeIn: bargeIn, Voice: s.Voice}, nil
}

func parseCollect(raw json.RawMessage) (Action, error) {
	var c struct {
		Schema struct {
			Fields []struct {
				Key      string    `json:"key"`
				Type     FieldType `json:"type"`
				Required *bool     `json:"required"`
			} `json:"fields"`
		} `json:"schema"`
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("collect: %w", err)
	}
	if len(c.Schema.Fields) == 0 {
		return nil, fmt.Errorf("collect: schema.fields must be non-empty")
	}

	fields := make([]CollectField, 0, len(c.Schema.Fields))
	for i, f := range c.Schema.Fields {
		if f.Key == "" {
			return nil, fmt.Errorf("collect: fields[%d].key must be non-empty", i)
		}
		if !f.Type.valid() {
			return nil, fmt.Errorf("collect: fields[%d].type %q is invalid", i, f.Type)
		}
		required := false
		if f.Required != nil {
			required = *f.Required
		}
		fields = append(fields, CollectField{Key: f.Key, Type: f.Type, Required: required})
	}
	return Collect{Schema: CollectSchema{Fields: fields}}, nil
}

func parseEnd(raw json.RawMessage) (Action, error) {
	var e struct {
		Reason   string `json:"reason"`
		Transfer *struct {
			To   string       `json:"to"`
			Mode TransferMode `json:"mode"`
		} `json:"transfer"`
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	if e.Reason == "" {
		return nil, fmt.Errorf("end: reason must be non-empty")
	}

	var transfer *Transfer
	if e.Transfer != nil {
		if e.Transfer.To == "" {
			return nil, fmt.Errorf("end: transfer.to must be non-empty")
		}
		if e.Transfer.Mode != "" && !e.Transfer.Mode.valid() {
			return nil, fmt.Errorf("end: transfer.mode %q is invalid", e.Transfer.Mode)
		}
		transfer = &Transfer{To: e.Transfer.To, Mode: e.Transfer.Mode}
	}
	return End{Reason: e.Reason, Transfer: transfer}, nil
}
