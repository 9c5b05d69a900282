// Package protocol defines the wire contract between a browser session and
// the dispatch runtime: the opaque identifiers, the client and server
// message envelopes, and the fixed error taxonomy.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// PlayerId uniquely identifies a player, independent of any single browser
// session. It survives reconnects.
type PlayerId uuid.UUID

// NewPlayerId allocates a fresh, uniformly random player identifier.
func NewPlayerId() PlayerId { return PlayerId(uuid.New()) }

// Compare gives the natural order used for leader tie-breaks and member
// sorting ("smallest PlayerId wins").
func (p PlayerId) Compare(other PlayerId) int {
	return bytes.Compare(p[:], other[:])
}

func (p PlayerId) String() string { return uuid.UUID(p).String() }

func (p PlayerId) MarshalJSON() ([]byte, error) { return json.Marshal(uuid.UUID(p).String()) }

func (p *PlayerId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("player id: %w", err)
	}
	*p = PlayerId(u)
	return nil
}

// ConnectionId identifies one accepted socket. It never outlives the socket.
type ConnectionId uuid.UUID

// NewConnectionId allocates a fresh connection identifier.
func NewConnectionId() ConnectionId { return ConnectionId(uuid.New()) }

func (c ConnectionId) String() string { return uuid.UUID(c).String() }

// GameId identifies a running lobby.
type GameId uuid.UUID

// NewGameId allocates a fresh lobby identifier.
func NewGameId() GameId { return GameId(uuid.New()) }

func (g GameId) String() string { return uuid.UUID(g).String() }

func (g GameId) MarshalJSON() ([]byte, error) { return json.Marshal(uuid.UUID(g).String()) }

func (g *GameId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("game id: %w", err)
	}
	*g = GameId(u)
	return nil
}

// EventId correlates a scheduled timer event back to the game that
// requested it; it has no meaning outside that one lobby.
type EventId uuid.UUID

// NewEventId allocates a fresh event identifier.
func NewEventId() EventId { return EventId(uuid.New()) }

func (e EventId) String() string { return uuid.UUID(e).String() }

func (e EventId) MarshalJSON() ([]byte, error) { return json.Marshal(uuid.UUID(e).String()) }

func (e *EventId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	*e = EventId(u)
	return nil
}

// MessageId is chosen by the client and echoed back on the reply, so the
// client can match requests to responses.
type MessageId uuid.UUID

func (m MessageId) String() string { return uuid.UUID(m).String() }

func (m MessageId) MarshalJSON() ([]byte, error) { return json.Marshal(uuid.UUID(m).String()) }

func (m *MessageId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*m = MessageId(u)
	return nil
}

// SortPlayerIds returns a freshly sorted copy, smallest first, the order the
// publish planner uses for the `players` field of GameInfo frames.
func SortPlayerIds(ids []PlayerId) []PlayerId {
	out := make([]PlayerId, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
