package echo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gameforge/internal/plugin"
	"gameforge/pkg/protocol"
)

func common(leader protocol.PlayerId) plugin.Common {
	return plugin.Common{Leader: leader, Members: map[protocol.PlayerId]struct{}{leader: {}}}
}

func TestChatMessageAppendsTranscript(t *testing.T) {
	g := New().(*Game)
	sender := protocol.NewPlayerId()

	updates, reply, err := g.OnMessage(common(sender), sender, json.RawMessage(`{"kind":"chat","text":"hello"}`))
	require.NoError(t, err)
	assert.True(t, updates.Changed)
	assert.Equal(t, json.RawMessage(`null`), reply)

	var s state
	require.NoError(t, json.Unmarshal(g.PublicState(common(sender)), &s))
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, "hello", s.Transcript[0].Text)
	assert.Equal(t, sender, s.Transcript[0].Sender)
	assert.False(t, s.Transcript[0].System)
}

func TestTitleMessageUpdatesTitle(t *testing.T) {
	g := New().(*Game)
	sender := protocol.NewPlayerId()

	_, _, err := g.OnMessage(common(sender), sender, json.RawMessage(`{"kind":"title","text":"game night"}`))
	require.NoError(t, err)

	var s state
	require.NoError(t, json.Unmarshal(g.PublicState(common(sender)), &s))
	assert.Equal(t, "game night", s.Title)
}

func TestUnknownMessageKindIsAGameError(t *testing.T) {
	g := New().(*Game)
	sender := protocol.NewPlayerId()

	_, _, err := g.OnMessage(common(sender), sender, json.RawMessage(`{"kind":"nonsense"}`))
	require.Error(t, err)

	var gameErr *plugin.GameError
	require.ErrorAs(t, err, &gameErr)
	assert.Contains(t, string(gameErr.Value), "nonsense")
}

func TestMalformedMessageIsAGameError(t *testing.T) {
	g := New().(*Game)
	sender := protocol.NewPlayerId()

	_, _, err := g.OnMessage(common(sender), sender, json.RawMessage(`not json`))
	require.Error(t, err)

	var gameErr *plugin.GameError
	require.ErrorAs(t, err, &gameErr)
}

func TestLifecycleHooksNoteTheTranscript(t *testing.T) {
	g := New().(*Game)
	leader := protocol.NewPlayerId()
	other := protocol.NewPlayerId()

	g.OnJoin(common(leader), other)
	g.OnDisconnect(common(leader), other)
	g.OnReconnect(common(leader), other)
	g.OnLeave(common(leader), other)

	var s state
	require.NoError(t, json.Unmarshal(g.PublicState(common(leader)), &s))
	require.Len(t, s.Transcript, 4)
	assert.Equal(t, "joined", s.Transcript[0].Text)
	assert.Equal(t, "disconnected", s.Transcript[1].Text)
	assert.Equal(t, "reconnected", s.Transcript[2].Text)
	assert.Equal(t, "left", s.Transcript[3].Text)
	for _, e := range s.Transcript {
		assert.True(t, e.System)
	}
}
