// Package runtime is the dispatch runtime: the single-threaded event loop
// that owns every connection, player and lobby, serializes all mutation
// through one goroutine, and runs the publish planner.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"gameforge/internal/eventqueue"
	"gameforge/internal/identity"
	"gameforge/internal/lobby"
	"gameforge/internal/plugin"
	"gameforge/internal/registry"
	"gameforge/pkg/protocol"
)

type playerRecord struct {
	writer     Writer
	identified bool
}

// Runtime owns clients, players, games and the event queue exclusively; no
// other goroutine ever touches them. Connection adapters interact with it
// only through Submit (producer side of the event channel) and their own
// Writer (consumer of outbound frames the runtime prepares).
type Runtime struct {
	clients map[protocol.ConnectionId]protocol.PlayerId
	players map[protocol.PlayerId]*playerRecord
	games   map[protocol.GameId]*lobby.Lobby

	registry *registry.Registry
	auth     *identity.Authenticator
	queue    *eventqueue.Queue
	plan     *publishPlan

	eventCh chan Event
	log     *zap.SugaredLogger
}

// New constructs a Runtime whose event channel holds eventChannelCapacity
// pending events before Submit starts applying back-pressure.
func New(reg *registry.Registry, auth *identity.Authenticator, log *zap.SugaredLogger, eventChannelCapacity int) *Runtime {
	return &Runtime{
		clients:  make(map[protocol.ConnectionId]protocol.PlayerId),
		players:  make(map[protocol.PlayerId]*playerRecord),
		games:    make(map[protocol.GameId]*lobby.Lobby),
		registry: reg,
		auth:     auth,
		queue:    eventqueue.New(),
		plan:     newPublishPlan(),
		eventCh:  make(chan Event, eventChannelCapacity),
		log:      log,
	}
}

// Submit enqueues an event for processing. It blocks if the runtime is
// behind, which is the intended back-pressure path: a slow runtime stalls
// connection reads, which stalls TCP flow control.
func (r *Runtime) Submit(ctx context.Context, ev Event) {
	select {
	case r.eventCh <- ev:
	case <-ctx.Done():
	}
}

// Run drives the event loop until ctx is cancelled. It is the only
// goroutine that ever reads or writes r's maps and queue.
func (r *Runtime) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	r.rearm(timer)

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-r.eventCh:
			r.handle(ev)
			r.flush()
			r.rearm(timer)

		case <-timer.C:
			r.fireDueTimers()
			r.flush()
			r.rearm(timer)
		}
	}
}

// rearm resets timer to fire at the earliest pending deadline, or far in
// the future if the queue is empty.
func (r *Runtime) rearm(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	deadline, ok := r.queue.PeekDeadline()
	if !ok {
		timer.Reset(time.Hour)
		return
	}
	d := time.Until(deadline)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

// fireDueTimers pops and delivers every timer entry whose deadline has
// passed. Entries whose lobby no longer exists are dropped silently
// (invariant I7).
func (r *Runtime) fireDueTimers() {
	now := time.Now()
	for {
		entry, ok := r.queue.PopDue(now)
		if !ok {
			return
		}
		g, ok := r.games[entry.GameId]
		if !ok {
			continue
		}
		updates := g.OnEvent(entry.EventId)
		r.applyUpdates(entry.GameId, updates)
	}
}

func (r *Runtime) handle(ev Event) {
	switch data := ev.Data.(type) {
	case Connected:
		r.handleConnected(ev.Conn, data)
	case Disconnected:
		r.handleDisconnected(ev.Conn)
	case InvalidMessage:
		r.handleInvalidMessage(ev.Conn, data)
	case MessageReceived:
		r.handleMessage(ev.Conn, data.Msg)
	}
}

func (r *Runtime) handleConnected(conn protocol.ConnectionId, data Connected) {
	playerId := r.auth.NewPlayerId()
	r.clients[conn] = playerId
	r.players[playerId] = &playerRecord{writer: data.Writer, identified: false}
}

func (r *Runtime) handleDisconnected(conn protocol.ConnectionId) {
	playerId, ok := r.clients[conn]
	if !ok {
		return
	}
	delete(r.clients, conn)
	delete(r.players, playerId)

	for gameId, g := range r.games {
		if !g.IsMember(playerId) {
			continue
		}
		updates := g.OnDisconnect(playerId)
		r.applyUpdates(gameId, updates)
	}
}

func (r *Runtime) handleInvalidMessage(conn protocol.ConnectionId, data InvalidMessage) {
	playerId, ok := r.clients[conn]
	if !ok {
		return
	}
	player, ok := r.players[playerId]
	if !ok {
		return
	}
	r.sendTo(player, protocol.NewServerSent(protocol.ServerSentMessage{
		Kind:    protocol.ServerSentError,
		Message: data.Err.Error(),
	}))
}

func (r *Runtime) handleMessage(conn protocol.ConnectionId, msg protocol.ClientMessage) {
	playerId, ok := r.clients[conn]
	if !ok {
		return
	}
	player := r.players[playerId]

	isIdentified := player.identified
	isIdentifyAttempt := msg.Type == protocol.ClientNewIdentity || msg.Type == protocol.ClientIdentify

	var reply protocol.ReplyMessage
	var replyTarget *playerRecord = player

	switch {
	case isIdentified && isIdentifyAttempt:
		reply = protocol.ErrReply(protocol.ErrAlreadyIdentified)
	case !isIdentified && !isIdentifyAttempt:
		reply = protocol.ErrReply(protocol.ErrMustIdentifyFirst)
	default:
		switch msg.Type {
		case protocol.ClientNewIdentity:
			player.identified = true
			reply = protocol.ReplyMessage{
				Kind: protocol.ReplyIdentity,
				Identity: &protocol.Identity{
					PlayerId:          playerId,
					ReconnectionToken: r.auth.Sign(playerId),
				},
			}

		case protocol.ClientIdentify:
			var claim protocol.IdentifyClaim
			if err := json.Unmarshal(msg.Data, &claim); err != nil {
				reply = protocol.ErrReply(protocol.ErrInvalidReconnectionToken)
				break
			}
			if !r.auth.Verify(claim.PlayerId, claim.ReconnectionToken) {
				reply = protocol.ErrReply(protocol.ErrInvalidReconnectionToken)
				break
			}
			reply = r.identify(conn, playerId, claim.PlayerId)
			playerId = claim.PlayerId
			replyTarget = r.players[playerId]

		case protocol.ClientGameModes:
			reply = protocol.ReplyMessage{Kind: protocol.ReplyGameModes, GameModes: r.registry.Names()}

		case protocol.ClientJoinedGames:
			reply = protocol.ReplyMessage{Kind: protocol.ReplyJoinedGames, JoinedGames: r.joinedGames(playerId)}

		case protocol.ClientCreateGame:
			reply = r.createGame(playerId, msg.Data)

		case protocol.ClientJoinGame:
			reply = r.joinGame(playerId, msg.Data)

		case protocol.ClientLeaveGame:
			reply = r.leaveGame(playerId, msg.Data)

		case protocol.ClientKickPlayer:
			reply = r.kickPlayer(playerId, msg.Data)

		case protocol.ClientPromoteLeader:
			reply = r.promoteLeader(playerId, msg.Data)

		case protocol.ClientInner:
			reply = r.inner(playerId, msg.Data)

		default:
			reply = protocol.ErrReply(protocol.ErrInvalidGameFormat)
		}
	}

	if replyTarget != nil {
		r.sendTo(replyTarget, protocol.NewReplyTo(msg.Id, reply))
	}
}

// identify rebinds conn and the transient player record from oldId to the
// claimed id, unbinding any other connection still bound to the claimed id,
// invokes OnReconnect for every lobby the claimed id belongs to, and queues
// a full state resend for each so a reconnecting client gets a fresh
// snapshot of everything it had joined without asking for it.
func (r *Runtime) identify(conn protocol.ConnectionId, oldId, claimedId protocol.PlayerId) protocol.ReplyMessage {
	for c, p := range r.clients {
		if p == claimedId && c != conn {
			delete(r.clients, c)
		}
	}
	r.clients[conn] = claimedId
	record := r.players[oldId]
	delete(r.players, oldId)
	record.identified = true
	r.players[claimedId] = record

	for gameId, g := range r.games {
		if !g.IsMember(claimedId) || !g.CanReconnect() {
			continue
		}
		updates := g.OnReconnect(claimedId)
		r.applyUpdates(gameId, updates)
		r.plan.add(gameId, claimedId)
	}

	return protocol.ReplyMessage{
		Kind: protocol.ReplyIdentity,
		Identity: &protocol.Identity{
			PlayerId:          claimedId,
			ReconnectionToken: r.auth.Sign(claimedId),
		},
	}
}

func (r *Runtime) joinedGames(playerId protocol.PlayerId) []protocol.GameId {
	var ids []protocol.GameId
	for gameId, g := range r.games {
		if !g.IsMember(playerId) {
			continue
		}
		ids = append(ids, gameId)
		r.plan.add(gameId, playerId)
	}
	return ids
}

func (r *Runtime) createGame(playerId protocol.PlayerId, data json.RawMessage) protocol.ReplyMessage {
	var payload protocol.CreateGamePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return protocol.ErrReply(protocol.ErrInvalidGameFormat)
	}

	state, ok := r.registry.Build(payload.Type)
	if !ok {
		return protocol.ErrReply(protocol.ErrInvalidGameFormat)
	}

	gameId := protocol.NewGameId()
	g := lobby.New(state, playerId)
	r.games[gameId] = g

	updates := g.OnJoin(playerId)
	r.applyUpdates(gameId, updates)
	r.plan.addAll(gameId)

	return protocol.ReplyMessage{Kind: protocol.ReplyGameCreated, GameId: &gameId}
}

func (r *Runtime) joinGame(playerId protocol.PlayerId, data json.RawMessage) protocol.ReplyMessage {
	var payload protocol.JoinGamePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}

	g, ok := r.games[payload.GameId]
	if !ok {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}
	if !g.CanJoin() {
		return protocol.ErrReply(protocol.ErrGameNotJoinable)
	}

	g.AddMember(playerId)
	updates := g.OnJoin(playerId)
	r.applyUpdates(payload.GameId, updates)
	r.plan.addAll(payload.GameId)

	return protocol.ReplyMessage{Kind: protocol.ReplyJoinedToGame, GameId: &payload.GameId}
}

func (r *Runtime) leaveGame(playerId protocol.PlayerId, data json.RawMessage) protocol.ReplyMessage {
	var payload protocol.LeaveGamePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}

	g, ok := r.games[payload.GameId]
	if !ok {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}
	if !g.IsMember(playerId) {
		return protocol.ErrReply(protocol.ErrNotInThatGame)
	}

	g.TryRemoveMember(playerId)
	updates := g.OnLeave(playerId)
	r.applyUpdates(payload.GameId, updates)

	if g.Empty() {
		delete(r.games, payload.GameId)
	} else {
		r.plan.addAll(payload.GameId)
	}

	return protocol.ReplyMessage{Kind: protocol.ReplyOk}
}

// kickPlayer and promoteLeader are reserved leader-only by the core,
// regardless of what a given game plugin would otherwise allow.
func (r *Runtime) kickPlayer(playerId protocol.PlayerId, data json.RawMessage) protocol.ReplyMessage {
	var payload protocol.KickPlayerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}

	g, ok := r.games[payload.GameId]
	if !ok {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}
	if g.Leader != playerId {
		return protocol.ErrReply(protocol.ErrNotLeader)
	}
	if !g.IsMember(payload.Target) {
		return protocol.ErrReply(protocol.ErrNotAMember)
	}

	g.TryRemoveMember(payload.Target)
	updates := g.OnKick(payload.Target)
	r.applyUpdates(payload.GameId, updates)

	if g.Empty() {
		delete(r.games, payload.GameId)
	} else {
		r.plan.addAll(payload.GameId)
	}

	return protocol.ReplyMessage{Kind: protocol.ReplyOk}
}

func (r *Runtime) promoteLeader(playerId protocol.PlayerId, data json.RawMessage) protocol.ReplyMessage {
	var payload protocol.PromoteLeaderPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}

	g, ok := r.games[payload.GameId]
	if !ok {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}
	if g.Leader != playerId {
		return protocol.ErrReply(protocol.ErrNotLeader)
	}
	if !g.IsMember(payload.Target) {
		return protocol.ErrReply(protocol.ErrNotAMember)
	}

	g.Leader = payload.Target
	r.plan.addAll(payload.GameId)

	return protocol.ReplyMessage{Kind: protocol.ReplyOk}
}

func (r *Runtime) inner(playerId protocol.PlayerId, data json.RawMessage) protocol.ReplyMessage {
	var payload protocol.InnerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}

	g, ok := r.games[payload.GameId]
	if !ok {
		return protocol.ErrReply(protocol.ErrNoSuchGameLobby)
	}
	if !g.IsMember(playerId) {
		return protocol.ErrReply(protocol.ErrNotInThatGame)
	}

	updates, value, err := g.OnMessage(playerId, payload.Value)
	r.applyUpdates(payload.GameId, updates)

	if err != nil {
		var gameErr *plugin.GameError
		if errors.As(err, &gameErr) {
			return protocol.ErrInnerReply(gameErr.Value)
		}
		errValue, _ := json.Marshal(err.Error())
		return protocol.ErrInnerReply(errValue)
	}
	return protocol.ReplyMessage{Kind: protocol.ReplyInner, Inner: value}
}

// applyUpdates enacts what a plugin call declared: queues a broadcast if
// the public state changed, and schedules any requested timers.
func (r *Runtime) applyUpdates(gameId protocol.GameId, updates plugin.Updates) {
	if updates.Changed {
		r.plan.addAll(gameId)
	}
	for _, t := range updates.Timers {
		r.queue.Add(eventqueue.Entry{GameId: gameId, EventId: t.EventId, Deadline: t.Deadline})
	}
}

// flush sends every pending GameInfo frame the publish plan accumulated
// during this event tick, then resets the plan.
func (r *Runtime) flush() {
	if r.plan.empty() {
		return
	}
	for gameId, target := range r.plan.targets {
		g, ok := r.games[gameId]
		if !ok {
			continue
		}

		var recipients []protocol.PlayerId
		if target.all {
			recipients = g.MemberList()
		} else {
			for p := range target.players {
				recipients = append(recipients, p)
			}
		}
		recipients = protocol.SortPlayerIds(recipients)

		public := g.PublicState()
		members := protocol.SortPlayerIds(g.MemberList())
		leader := g.Leader

		for _, p := range recipients {
			rec, ok := r.players[p]
			if !ok {
				continue
			}
			private := g.StateForPlayer(p)
			r.sendTo(rec, protocol.NewServerSent(protocol.ServerSentMessage{
				Kind:         protocol.ServerSentGameInfo,
				GameId:       &gameId,
				Leader:       &leader,
				Players:      members,
				PublicState:  public,
				PrivateState: private,
			}))
		}
	}
	r.plan.reset()
}

// sendTo writes msg to a player's write half. Failures are transient
// (socket already dead) and are swallowed — the eventual Disconnected event
// reconciles state.
func (r *Runtime) sendTo(player *playerRecord, msg protocol.ServerMessage) {
	if player == nil || player.writer == nil {
		return
	}
	if err := player.writer.Send(msg); err != nil && r.log != nil {
		r.log.Debugw("write failed, ignoring", "error", err)
	}
}
