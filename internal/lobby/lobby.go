// Package lobby pairs a game plugin's state with the "common" state every
// lobby carries regardless of game type: its leader and member set.
package lobby

import (
	"encoding/json"

	"gameforge/internal/plugin"
	"gameforge/pkg/protocol"
)

// Lobby is the unit of scheduling and broadcast: one running game session.
// It is exclusively owned by the dispatch runtime's single event-loop
// goroutine — nothing here needs its own locking.
type Lobby struct {
	Leader  protocol.PlayerId
	Members map[protocol.PlayerId]struct{}
	State   plugin.Game
}

// New creates a lobby of the given game type with a single founding member
// who is also its first leader.
func New(state plugin.Game, founder protocol.PlayerId) *Lobby {
	return &Lobby{
		Leader:  founder,
		Members: map[protocol.PlayerId]struct{}{founder: {}},
		State:   state,
	}
}

// common snapshots the lobby's leader/member state for a plugin call.
func (l *Lobby) common() plugin.Common {
	return plugin.Common{Leader: l.Leader, Members: l.Members}
}

// MemberList returns the current members, in no particular order.
func (l *Lobby) MemberList() []protocol.PlayerId {
	out := make([]protocol.PlayerId, 0, len(l.Members))
	for p := range l.Members {
		out = append(out, p)
	}
	return out
}

// IsMember reports whether p currently belongs to this lobby.
func (l *Lobby) IsMember(p protocol.PlayerId) bool {
	_, ok := l.Members[p]
	return ok
}

// AddMember inserts p into the member set. It does not call OnJoin; callers
// invoke plugin hooks explicitly so the runtime controls ordering relative
// to the publish plan.
func (l *Lobby) AddMember(p protocol.PlayerId) {
	l.Members[p] = struct{}{}
}

// TryRemoveMember removes player from the member set, reassigning the
// leader by the deterministic tie-break rule (smallest remaining PlayerId)
// if the removed player was the leader. Reports false if player was not a
// member.
func (l *Lobby) TryRemoveMember(player protocol.PlayerId) bool {
	if _, ok := l.Members[player]; !ok {
		return false
	}
	delete(l.Members, player)

	if player == l.Leader && len(l.Members) > 0 {
		var newLeader protocol.PlayerId
		first := true
		for p := range l.Members {
			if first || p.Compare(newLeader) < 0 {
				newLeader = p
				first = false
			}
		}
		l.Leader = newLeader
	}

	return true
}

// Empty reports whether the lobby has no remaining members.
func (l *Lobby) Empty() bool { return len(l.Members) == 0 }

// PublicState reads the game's shared view.
func (l *Lobby) PublicState() json.RawMessage {
	return l.State.PublicState(l.common())
}

// StateForPlayer reads the game's private view for one player.
func (l *Lobby) StateForPlayer(player protocol.PlayerId) json.RawMessage {
	return l.State.StateForPlayer(l.common(), player)
}

// CanJoin reports whether the game currently accepts new members.
func (l *Lobby) CanJoin() bool { return l.State.CanJoin(l.common()) }

// CanReconnect reports whether the game currently accepts reconnects.
func (l *Lobby) CanReconnect() bool { return l.State.CanReconnect(l.common()) }

// OnJoin, OnLeave, OnKick, OnDisconnect and OnReconnect invoke the matching
// plugin lifecycle hook against the current common snapshot.
func (l *Lobby) OnJoin(player protocol.PlayerId) plugin.Updates {
	return l.State.OnJoin(l.common(), player)
}

func (l *Lobby) OnLeave(player protocol.PlayerId) plugin.Updates {
	return l.State.OnLeave(l.common(), player)
}

func (l *Lobby) OnKick(player protocol.PlayerId) plugin.Updates {
	return l.State.OnKick(l.common(), player)
}

func (l *Lobby) OnDisconnect(player protocol.PlayerId) plugin.Updates {
	return l.State.OnDisconnect(l.common(), player)
}

func (l *Lobby) OnReconnect(player protocol.PlayerId) plugin.Updates {
	return l.State.OnReconnect(l.common(), player)
}

// OnEvent invokes the plugin's timer-fired hook.
func (l *Lobby) OnEvent(id protocol.EventId) plugin.Updates {
	return l.State.OnEvent(l.common(), id)
}

// OnMessage invokes the plugin's game-specific message handler.
func (l *Lobby) OnMessage(sender protocol.PlayerId, value json.RawMessage) (plugin.Updates, json.RawMessage, error) {
	return l.State.OnMessage(l.common(), sender, value)
}
