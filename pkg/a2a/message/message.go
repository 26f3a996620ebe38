// SPDX-License-Identifier: Apache-2.0

// Package message holds helpers over the a2a-go message model: building
// text turns, reading text back out and tolerating part kinds a2a-go does
// not know.
package message

import (
	"encoding/json"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
)

const (
	// OpaqueKindKey is the data part metadata key that records the original
	// kind of a part a2a-go could not decode.
	OpaqueKindKey = "opaqueKind"

	// ReturnTaskKey in message metadata asks the server to run the exchange
	// as a task and answer with it instead of a bare reply.
	ReturnTaskKey = "returnTask"
)

// UserText builds a user turn with a single text part and a fresh id.
func UserText(text string) *a2a.Message {
	return a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: text})
}

// RequestTask flags msg for task mode and returns it.
func RequestTask(msg *a2a.Message) *a2a.Message {
	if msg.Metadata == nil {
		msg.Metadata = map[string]any{}
	}
	msg.Metadata[ReturnTaskKey] = true
	return msg
}

// WantsTask reports whether msg continues a task or asks for one.
func WantsTask(msg *a2a.Message) bool {
	if msg == nil {
		return false
	}
	if msg.TaskID != "" {
		return true
	}
	flag, _ := msg.Metadata[ReturnTaskKey].(bool)
	return flag
}

// FirstText returns the text of the first text part.
func FirstText(msg *a2a.Message) (string, bool) {
	if msg == nil {
		return "", false
	}
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case a2a.TextPart:
			return p.Text, true
		case *a2a.TextPart:
			return p.Text, true
		}
	}
	return "", false
}

// Text joins every text part with newlines.
func Text(msg *a2a.Message) string {
	if msg == nil {
		return ""
	}
	var texts []string
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case a2a.TextPart:
			texts = append(texts, p.Text)
		case *a2a.TextPart:
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// OpaqueKind reports the original kind of a part rewritten by
// TolerateParts.
func OpaqueKind(part a2a.Part) (string, bool) {
	dp, ok := part.(a2a.DataPart)
	if !ok {
		return "", false
	}
	kind, ok := dp.Metadata[OpaqueKindKey].(string)
	return kind, ok
}

// TolerateParts rewrites params.message.parts so every part has a kind
// a2a-go can decode. A part of unknown kind becomes a data part holding the
// original object, tagged with OpaqueKindKey. Input that is not shaped like
// send params is returned unchanged for the typed decoder to reject.
func TolerateParts(raw json.RawMessage) json.RawMessage {
	var params map[string]json.RawMessage
	if err := json.Unmarshal(raw, &params); err != nil {
		return raw
	}
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(params["message"], &msg); err != nil {
		return raw
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(msg["parts"], &parts); err != nil {
		return raw
	}

	changed := false
	for i, part := range parts {
		var body map[string]any
		if err := json.Unmarshal(part, &body); err != nil {
			continue
		}
		kind, _ := body["kind"].(string)
		switch kind {
		case "text", "file", "data":
			continue
		}
		wrapped, err := json.Marshal(map[string]any{
			"kind":     "data",
			"data":     body,
			"metadata": map[string]any{OpaqueKindKey: kind},
		})
		if err != nil {
			continue
		}
		parts[i] = wrapped
		changed = true
	}
	if !changed {
		return raw
	}

	var err error
	if msg["parts"], err = json.Marshal(parts); err != nil {
		return raw
	}
	if params["message"], err = json.Marshal(msg); err != nil {
		return raw
	}
	out, err := json.Marshal(params)
	if err != nil {
		return raw
	}
	return out
}
