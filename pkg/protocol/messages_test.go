package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrReplyRoundTripsThroughJSON(t *testing.T) {
	reply := ErrReply(ErrNotLeader)

	data, err := json.Marshal(reply)
	require.NoError(t, err)

	var decoded ReplyMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, ReplyError, decoded.Kind)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, ErrNotLeader, decoded.Error.Kind)
	assert.Empty(t, decoded.Error.Inner)
}

func TestErrInnerReplyCarriesRawGameValue(t *testing.T) {
	gameValue := json.RawMessage(`{"reason":"not your turn"}`)
	reply := ErrInnerReply(gameValue)

	assert.Equal(t, ReplyError, reply.Kind)
	require.NotNil(t, reply.Error)
	assert.Equal(t, ErrInner, reply.Error.Kind)
	assert.JSONEq(t, string(gameValue), string(reply.Error.Inner))
}

func TestNewReplyToEnvelopesTheRequestId(t *testing.T) {
	id := MessageId{}
	msg := NewReplyTo(id, ReplyMessage{Kind: ReplyOk})

	assert.Equal(t, ServerMessageReplyTo, msg.Kind)
	require.NotNil(t, msg.ReplyTo)
	assert.Equal(t, id, *msg.ReplyTo)
	require.NotNil(t, msg.Reply)
	assert.Nil(t, msg.ServerSent)
}

func TestNewServerSentEnvelopesAPush(t *testing.T) {
	gameId := NewGameId()
	push := ServerSentMessage{Kind: ServerSentGameInfo, GameId: &gameId}
	msg := NewServerSent(push)

	assert.Equal(t, ServerMessageServerSent, msg.Kind)
	assert.Nil(t, msg.ReplyTo)
	assert.Nil(t, msg.Reply)
	require.NotNil(t, msg.ServerSent)
	assert.Equal(t, ServerSentGameInfo, msg.ServerSent.Kind)
}

func TestClientMessageUnmarshalsOpaqueData(t *testing.T) {
	raw := []byte(`{"id":"` + MessageId{}.String() + `","type":"JOIN_GAME","data":{"game_id":"` + NewGameId().String() + `"}}`)

	var msg ClientMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, ClientJoinGame, msg.Type)

	var payload JoinGamePayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
}
