package runtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gameforge/internal/games/echo"
	"gameforge/internal/identity"
	"gameforge/internal/plugin"
	"gameforge/internal/registry"
	"gameforge/pkg/protocol"
)

// fakeWriter records every message handed to it; tests drain it with recv.
type fakeWriter struct {
	ch chan protocol.ServerMessage
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{ch: make(chan protocol.ServerMessage, 32)}
}

func (w *fakeWriter) Send(msg protocol.ServerMessage) error {
	w.ch <- msg
	return nil
}

func (w *fakeWriter) recv(t *testing.T) protocol.ServerMessage {
	t.Helper()
	select {
	case msg := <-w.ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a message")
		return protocol.ServerMessage{}
	}
}

func newTestRuntime(t *testing.T) (*Runtime, context.Context) {
	t.Helper()
	reg := registry.New()
	reg.Register("echo", echo.New)
	auth, err := identity.New()
	require.NoError(t, err)

	rt := New(reg, auth, zap.NewNop().Sugar(), 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rt.Run(ctx)
	return rt, ctx
}

func connect(ctx context.Context, rt *Runtime) (protocol.ConnectionId, *fakeWriter) {
	conn := protocol.NewConnectionId()
	w := newFakeWriter()
	rt.Submit(ctx, Event{Conn: conn, Data: Connected{Writer: w}})
	return conn, w
}

func newIdentity(ctx context.Context, rt *Runtime, conn protocol.ConnectionId) protocol.MessageId {
	id := protocol.MessageId{}
	rt.Submit(ctx, Event{Conn: conn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Id:   id,
		Type: protocol.ClientNewIdentity,
	}}})
	return id
}

func TestNewIdentityReturnsAFreshPlayerId(t *testing.T) {
	rt, ctx := newTestRuntime(t)
	conn, w := connect(ctx, rt)
	newIdentity(ctx, rt, conn)

	msg := w.recv(t)
	require.NotNil(t, msg.Reply)
	assert.Equal(t, protocol.ReplyIdentity, msg.Reply.Kind)
	require.NotNil(t, msg.Reply.Identity)
	assert.NotEmpty(t, msg.Reply.Identity.ReconnectionToken)
}

func TestMessageBeforeIdentifyIsRejected(t *testing.T) {
	rt, ctx := newTestRuntime(t)
	conn, w := connect(ctx, rt)

	rt.Submit(ctx, Event{Conn: conn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Type: protocol.ClientGameModes,
	}}})

	msg := w.recv(t)
	require.NotNil(t, msg.Reply)
	assert.Equal(t, protocol.ReplyError, msg.Reply.Kind)
	require.NotNil(t, msg.Reply.Error)
	assert.Equal(t, protocol.ErrMustIdentifyFirst, msg.Reply.Error.Kind)
}

func TestCreateGameThenJoinGameBroadcastsToBothMembers(t *testing.T) {
	rt, ctx := newTestRuntime(t)

	hostConn, hostW := connect(ctx, rt)
	newIdentity(ctx, rt, hostConn)
	hostW.recv(t) // identity reply

	createData, err := json.Marshal(protocol.CreateGamePayload{Type: "echo"})
	require.NoError(t, err)
	rt.Submit(ctx, Event{Conn: hostConn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Type: protocol.ClientCreateGame,
		Data: createData,
	}}})

	created := hostW.recv(t)
	require.NotNil(t, created.Reply)
	require.Equal(t, protocol.ReplyGameCreated, created.Reply.Kind)
	require.NotNil(t, created.Reply.GameId)
	gameId := *created.Reply.GameId

	// creating the game also broadcasts its initial GameInfo to the host.
	info := hostW.recv(t)
	require.NotNil(t, info.ServerSent)
	assert.Equal(t, protocol.ServerSentGameInfo, info.ServerSent.Kind)

	guestConn, guestW := connect(ctx, rt)
	newIdentity(ctx, rt, guestConn)
	guestW.recv(t)

	joinData, err := json.Marshal(protocol.JoinGamePayload{GameId: gameId})
	require.NoError(t, err)
	rt.Submit(ctx, Event{Conn: guestConn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Type: protocol.ClientJoinGame,
		Data: joinData,
	}}})

	joined := guestW.recv(t)
	require.NotNil(t, joined.Reply)
	assert.Equal(t, protocol.ReplyJoinedToGame, joined.Reply.Kind)

	// both members receive the refreshed GameInfo once the guest joins.
	hostInfo := hostW.recv(t)
	require.NotNil(t, hostInfo.ServerSent)
	assert.Len(t, hostInfo.ServerSent.Players, 2)

	guestInfo := guestW.recv(t)
	require.NotNil(t, guestInfo.ServerSent)
	assert.Len(t, guestInfo.ServerSent.Players, 2)
}

// timerMsg requests a timer be scheduled delayMs from now.
type timerMsg struct {
	DelayMs int `json:"delayMs"`
}

// timerGame is a stub plug-in that exists only to drive a real plugin.Timer
// through the runtime's own Run loop: OnMessage schedules exactly one timer
// and OnEvent reports every firing it receives onto fired, so a test can
// assert on delivery count and timing from outside the runtime.
type timerGame struct {
	plugin.Base
	fired chan protocol.EventId
}

func (g *timerGame) PublicState(plugin.Common) json.RawMessage { return json.RawMessage(`null`) }

func (g *timerGame) StateForPlayer(plugin.Common, protocol.PlayerId) json.RawMessage {
	return json.RawMessage(`null`)
}

func (g *timerGame) OnEvent(_ plugin.Common, id protocol.EventId) plugin.Updates {
	g.fired <- id
	return plugin.Nothing
}

func (g *timerGame) OnMessage(_ plugin.Common, _ protocol.PlayerId, value json.RawMessage) (plugin.Updates, json.RawMessage, error) {
	var msg timerMsg
	if err := json.Unmarshal(value, &msg); err != nil {
		return plugin.Nothing, nil, plugin.NewGameError(json.RawMessage(`"bad timer request"`))
	}
	updates := plugin.Updates{Timers: []plugin.Timer{{
		EventId:  protocol.NewEventId(),
		Deadline: time.Now().Add(time.Duration(msg.DelayMs) * time.Millisecond),
	}}}
	return updates, json.RawMessage(`null`), nil
}

// newTimerTestRuntime is newTestRuntime plus a "timer" game type whose
// OnEvent firings are observable on the returned channel.
func newTimerTestRuntime(t *testing.T) (*Runtime, context.Context, chan protocol.EventId) {
	t.Helper()
	reg := registry.New()
	reg.Register("echo", echo.New)
	fired := make(chan protocol.EventId, 8)
	reg.Register("timer", func() plugin.Game { return &timerGame{fired: fired} })
	auth, err := identity.New()
	require.NoError(t, err)

	rt := New(reg, auth, zap.NewNop().Sugar(), 64)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go rt.Run(ctx)
	return rt, ctx, fired
}

// scheduleTimer creates a "timer" lobby as host, schedules one timer on it
// via a real Inner message, and returns the lobby's id once the scheduling
// round-trip (create + broadcast + inner reply) has drained.
func scheduleTimer(t *testing.T, rt *Runtime, ctx context.Context, hostConn protocol.ConnectionId, hostW *fakeWriter, delayMs int) protocol.GameId {
	t.Helper()

	createData, err := json.Marshal(protocol.CreateGamePayload{Type: "timer"})
	require.NoError(t, err)
	rt.Submit(ctx, Event{Conn: hostConn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Type: protocol.ClientCreateGame,
		Data: createData,
	}}})

	created := hostW.recv(t)
	require.NotNil(t, created.Reply)
	require.Equal(t, protocol.ReplyGameCreated, created.Reply.Kind)
	gameId := *created.Reply.GameId
	hostW.recv(t) // initial GameInfo broadcast queued by CreateGame

	innerValue, err := json.Marshal(timerMsg{DelayMs: delayMs})
	require.NoError(t, err)
	innerData, err := json.Marshal(protocol.InnerPayload{GameId: gameId, Value: innerValue})
	require.NoError(t, err)
	rt.Submit(ctx, Event{Conn: hostConn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Type: protocol.ClientInner,
		Data: innerData,
	}}})

	reply := hostW.recv(t)
	require.NotNil(t, reply.Reply)
	require.Equal(t, protocol.ReplyInner, reply.Reply.Kind)

	return gameId
}

func TestScheduledTimerFiresExactlyOnceThroughRunLoop(t *testing.T) {
	rt, ctx, fired := newTimerTestRuntime(t)

	hostConn, hostW := connect(ctx, rt)
	newIdentity(ctx, rt, hostConn)
	hostW.recv(t) // identity reply

	scheduleTimer(t, rt, ctx, hostConn, hostW, 20)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the timer to fire through Run()")
	}

	// nothing re-arms or duplicates the same deadline: a second firing
	// would mean fireDueTimers re-delivered a popped entry.
	select {
	case id := <-fired:
		t.Fatalf("timer fired a second time: %v", id)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTimerForDestroyedLobbyIsDiscardedSilently(t *testing.T) {
	rt, ctx, fired := newTimerTestRuntime(t)

	hostConn, hostW := connect(ctx, rt)
	newIdentity(ctx, rt, hostConn)
	hostW.recv(t) // identity reply

	gameId := scheduleTimer(t, rt, ctx, hostConn, hostW, 60)

	leaveData, err := json.Marshal(protocol.LeaveGamePayload{GameId: gameId})
	require.NoError(t, err)
	rt.Submit(ctx, Event{Conn: hostConn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Type: protocol.ClientLeaveGame,
		Data: leaveData,
	}}})

	leaveReply := hostW.recv(t)
	require.NotNil(t, leaveReply.Reply)
	assert.Equal(t, protocol.ReplyOk, leaveReply.Reply.Kind)

	// the lobby was the host's last membership, so leaving it deletes the
	// entry from r.games; the pending timer's deadline is still ahead of
	// us. Wait past it and confirm fireDueTimers' stale-lobby branch drops
	// it rather than delivering or panicking.
	select {
	case id := <-fired:
		t.Fatalf("timer fired for a destroyed lobby: %v", id)
	case <-time.After(150 * time.Millisecond):
	}

	// the runtime itself must still be alive and processing events.
	rt.Submit(ctx, Event{Conn: hostConn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Type: protocol.ClientGameModes,
	}}})
	reply := hostW.recv(t)
	require.NotNil(t, reply.Reply)
	assert.Equal(t, protocol.ReplyGameModes, reply.Reply.Kind)
}

func TestJoinGameOnUnknownLobbyIsRejected(t *testing.T) {
	rt, ctx := newTestRuntime(t)
	conn, w := connect(ctx, rt)
	newIdentity(ctx, rt, conn)
	w.recv(t)

	joinData, err := json.Marshal(protocol.JoinGamePayload{GameId: protocol.NewGameId()})
	require.NoError(t, err)
	rt.Submit(ctx, Event{Conn: conn, Data: MessageReceived{Msg: protocol.ClientMessage{
		Type: protocol.ClientJoinGame,
		Data: joinData,
	}}})

	reply := w.recv(t)
	require.NotNil(t, reply.Reply)
	require.NotNil(t, reply.Reply.Error)
	assert.Equal(t, protocol.ErrNoSuchGameLobby, reply.Reply.Error.Kind)
}
