package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStructured_WholeTextEnvelope(t *testing.T) {
	reply := `{"actions":[{"type":"speak","message_id":"m1","text":"Hello there"}]}`
	acts, ok := ParseStructured(reply)
	require.True(t, ok)
	require.Len(t, acts, 1)
	speak, isSpeak := acts[0].(Speak)
	require.True(t, isSpeak)
	assert.Equal(t, "Hello there", speak.Text)
	assert.True(t, speak.BargeIn)
}

func TestParseStructured_FencedBlock(t *testing.T) {
	reply := "Sure thing, here's my plan:\n```json\n" +
		`{"actions":[{"type":"end","reason":"caller_hung_up"}]}` +
		"\n```\nLet me know if you need anything else."
	acts, ok := ParseStructured(reply)
	require.True(t, ok)
	require.Len(t, acts, 1)
	end, isEnd := acts[0].(End)
	require.True(t, isEnd)
	assert.Equal(t, "caller_hung_up", end.Reason)
	assert.Nil(t, end.Transfer)
}

func TestParseStructured_FirstFullyValidCandidateWins(t *testing.T) {
	// The whole text is not valid JSON, but the fenced block is.
	reply := "not json at all\n```\n" +
		`{"actions":[{"type":"speak","text":"ok"}]}` +
		"\n```"
	acts, ok := ParseStructured(reply)
	require.True(t, ok)
	require.Len(t, acts, 1)
}

func TestParseStructured_RejectsUnknownActionType(t *testing.T) {
	reply := `{"actions":[{"type":"dance"}]}`
	_, ok := ParseStructured(reply)
	assert.False(t, ok)
}

func TestParseStructured_RejectsEmptySpeakText(t *testing.T) {
	reply := `{"actions":[{"type":"speak","text":""}]}`
	_, ok := ParseStructured(reply)
	assert.False(t, ok)
}

func TestParseStructured_RejectsCollectWithNoFields(t *testing.T) {
	reply := `{"actions":[{"type":"collect","schema":{"fields":[]}}]}`
	_, ok := ParseStructured(reply)
	assert.False(t, ok)
}

func TestParseStructured_RejectsCollectFieldBadType(t *testing.T) {
	reply := `{"actions":[{"type":"collect","schema":{"fields":[{"key":"city","type":"nope"}]}}]}`
	_, ok := ParseStructured(reply)
	assert.False(t, ok)
}

func TestParseStructured_CollectDefaultsRequiredFalse(t *testing.T) {
	reply := `{"actions":[{"type":"collect","schema":{"fields":[{"key":"city","type":"string"}]}}]}`
	acts, ok := ParseStructured(reply)
	require.True(t, ok)
	collect := acts[0].(Collect)
	assert.False(t, collect.Schema.Fields[0].Required)
}

func TestParseStructured_EndWithTransfer(t *testing.T) {
	reply := `{"actions":[{"type":"end","reason":"escalate","transfer":{"to":"+15551234567","mode":"warm"}}]}`
	acts, ok := ParseStructured(reply)
	require.True(t, ok)
	end := acts[0].(End)
	require.NotNil(t, end.Transfer)
	assert.Equal(t, "+15551234567", end.Transfer.To)
	assert.Equal(t, TransferWarm, end.Transfer.Mode)
}

func TestParseStructured_RejectsEndTransferBadMode(t *testing.T) {
	reply := `{"actions":[{"type":"end","reason":"escalate","transfer":{"to":"+1","mode":"lukewarm"}}]}`
	_, ok := ParseStructured(reply)
	assert.False(t, ok)
}

func TestParseStructured_NotStructuredFallsBackToFalse(t *testing.T) {
	_, ok := ParseStructured("Just a plain sentence with no JSON anywhere.")
	assert.False(t, ok)
}

func TestParseStructured_MissingActionsArrayRejected(t *testing.T) {
	_, ok := ParseStructured(`{"foo":"bar"}`)
	assert.False(t, ok)
}
