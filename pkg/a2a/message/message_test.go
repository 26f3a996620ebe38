// SPDX-License-Identifier: Apache-2.0

package message

import (
	"encoding/json"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTolerateUnknownPartKinds(t *testing.T) {
	in := `{"message":{"kind":"message","messageId":"m-1","role":"user","parts":[` +
		`{"kind":"text","text":"hello"},` +
		`{"kind":"data","data":{"n":1}},` +
		`{"kind":"hologram","beam":{"x":1,"y":[2,3]}}]}}`

	var params a2a.MessageSendParams
	require.NoError(t, json.Unmarshal(TolerateParts(json.RawMessage(in)), &params))
	require.NotNil(t, params.Message)
	require.Len(t, params.Message.Parts, 3)

	kind, ok := OpaqueKind(params.Message.Parts[2])
	require.True(t, ok)
	assert.Equal(t, "hologram", kind)
	data := params.Message.Parts[2].(a2a.DataPart).Data
	assert.Equal(t, map[string]any{"x": float64(1), "y": []any{float64(2), float64(3)}}, data["beam"])

	_, ok = OpaqueKind(params.Message.Parts[1])
	assert.False(t, ok)

	text, ok := FirstText(params.Message)
	assert.True(t, ok)
	assert.Equal(t, "hello", text)
}

func TestTolerateLeavesKnownInputAlone(t *testing.T) {
	in := json.RawMessage(`{"message":{"messageId":"m","role":"user","parts":[{"kind":"text","text":"a"}]}}`)
	assert.Equal(t, string(in), string(TolerateParts(in)))

	garbage := json.RawMessage(`[1,2]`)
	assert.Equal(t, string(garbage), string(TolerateParts(garbage)))
}

func TestFirstTextSkipsNonTextParts(t *testing.T) {
	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.DataPart{Data: map[string]any{"a": 1}}, a2a.TextPart{Text: "second"})
	text, ok := FirstText(msg)
	assert.True(t, ok)
	assert.Equal(t, "second", text)

	_, ok = FirstText(a2a.NewMessage(a2a.MessageRoleUser, a2a.DataPart{}))
	assert.False(t, ok)
	_, ok = FirstText(nil)
	assert.False(t, ok)
}

func TestText(t *testing.T) {
	msg := a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: "a"}, a2a.DataPart{}, a2a.TextPart{Text: "b"})
	assert.Equal(t, "a\nb", Text(msg))
	assert.Empty(t, Text(nil))
}

func TestWantsTask(t *testing.T) {
	msg := UserText("x")
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, a2a.MessageRoleUser, msg.Role)
	assert.False(t, WantsTask(msg))

	assert.True(t, WantsTask(RequestTask(UserText("x"))))

	cont := UserText("x")
	cont.TaskID = "t-1"
	assert.True(t, WantsTask(cont))
	assert.False(t, WantsTask(nil))
}
