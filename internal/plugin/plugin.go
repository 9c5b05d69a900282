// Package plugin defines the extension point every game implementation
// must satisfy. A plugin never touches the network or the scheduler
// directly: it declares consequences as data (Updates) and the runtime
// enacts them.
package plugin

import (
	"encoding/json"
	"time"

	"gameforge/pkg/protocol"
)

// GameError is the Err branch of an OnMessage result: a JSON value defined
// by the game itself, not a human-readable Go error string. The runtime
// unwraps it and forwards Value verbatim to the requesting client.
type GameError struct {
	Value json.RawMessage
}

func (e *GameError) Error() string { return string(e.Value) }

// NewGameError wraps a JSON value as the Err branch of an OnMessage result.
func NewGameError(value json.RawMessage) *GameError {
	return &GameError{Value: value}
}

// Common is the read-only snapshot of a lobby's leader and member set
// handed to every plugin call. It is a snapshot taken at call entry; a
// plugin must not assume it stays valid beyond the call that received it.
type Common struct {
	Leader  protocol.PlayerId
	Members map[protocol.PlayerId]struct{}
}

// IsMember reports whether p currently belongs to the lobby.
func (c Common) IsMember(p protocol.PlayerId) bool {
	_, ok := c.Members[p]
	return ok
}

// Timer is one (deadline, event id) registration a plugin requests.
type Timer struct {
	EventId  protocol.EventId
	Deadline time.Time
}

// Updates reports what a handler wants the runtime to do after it returns:
// whether the public state changed (needs broadcast) and what timers to
// register. Updates compose by disjunction of Changed and concatenation of
// Timers; the zero value is the identity element.
type Updates struct {
	Changed bool
	Timers  []Timer
}

// Merge combines two Updates values: Changed by disjunction, Timers by
// concatenation. The zero value is the identity element.
func (u Updates) Merge(other Updates) Updates {
	return Updates{
		Changed: u.Changed || other.Changed,
		Timers:  append(append([]Timer{}, u.Timers...), other.Timers...),
	}
}

// Nothing is the "no-op" Updates value: unchanged state, no timers.
var Nothing = Updates{}

// Changed is a convenience constructor for "broadcast, no timers".
func Changed() Updates { return Updates{Changed: true} }

// Game is the capability set every game plug-in supplies. All methods run
// under the runtime's serialization invariant — exactly one in-flight call
// per lobby at any time — and must not block or perform I/O.
type Game interface {
	// PublicState is the view shown to every member of the lobby.
	PublicState(common Common) json.RawMessage
	// StateForPlayer is the per-player private view.
	StateForPlayer(common Common, player protocol.PlayerId) json.RawMessage

	// CanJoin gates JoinGame.
	CanJoin(common Common) bool
	// CanReconnect gates reconnecting via Identify.
	CanReconnect(common Common) bool

	// OnJoin is called after a player is added to the lobby.
	OnJoin(common Common, player protocol.PlayerId) Updates
	// OnLeave is called after a player is removed via LeaveGame.
	OnLeave(common Common, player protocol.PlayerId) Updates
	// OnKick is called after a player is removed via KickPlayer.
	OnKick(common Common, player protocol.PlayerId) Updates
	// OnDisconnect is called when a member's connection drops. Membership
	// is not affected — the player may still reconnect.
	OnDisconnect(common Common, player protocol.PlayerId) Updates
	// OnReconnect is called when a member's connection resumes.
	OnReconnect(common Common, player protocol.PlayerId) Updates

	// OnEvent is called when a previously scheduled timer fires.
	OnEvent(common Common, id protocol.EventId) Updates

	// OnMessage handles a game-specific client message. The returned JSON
	// value is the reply sent to that specific client: Ok becomes
	// ReplyInner, Err becomes ErrInner.
	OnMessage(common Common, sender protocol.PlayerId, value json.RawMessage) (Updates, json.RawMessage, error)
}

// Base provides default ("nothing changed") implementations of every
// lifecycle hook and join/reconnect gate, so a plugin need only embed it and
// override what it cares about.
type Base struct{}

func (Base) CanJoin(Common) bool      { return true }
func (Base) CanReconnect(Common) bool { return true }

func (Base) OnJoin(Common, protocol.PlayerId) Updates       { return Nothing }
func (Base) OnLeave(Common, protocol.PlayerId) Updates      { return Nothing }
func (Base) OnKick(Common, protocol.PlayerId) Updates       { return Nothing }
func (Base) OnDisconnect(Common, protocol.PlayerId) Updates { return Nothing }
func (Base) OnReconnect(Common, protocol.PlayerId) Updates  { return Nothing }
func (Base) OnEvent(Common, protocol.EventId) Updates       { return Nothing }
