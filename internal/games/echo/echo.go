// Package echo implements a minimal chat-style game plug-in: every chat
// message is appended to a shared transcript visible to the whole lobby,
// and a title message sets the lobby's title.
// It exists to exercise the plug-in contract end to end, not as a product
// feature.
package echo

import (
	"encoding/json"
	"fmt"

	"gameforge/internal/plugin"
	"gameforge/pkg/protocol"
)

// Entry is one line of the transcript.
type Entry struct {
	Sender protocol.PlayerId `json:"sender"`
	Text   string            `json:"text"`
	System bool              `json:"system,omitempty"`
}

type state struct {
	Title     string  `json:"title"`
	Transcript []Entry `json:"transcript"`
}

// Game is the echo plug-in's state. The zero value is a ready-to-play
// lobby with an empty transcript.
type Game struct {
	plugin.Base
	state state
}

// New constructs a fresh, empty echo lobby. Used as a registry.Constructor.
func New() plugin.Game { return &Game{} }

// userMessage is the inner payload a client may send.
type userMessage struct {
	Kind string `json:"kind"`
	Text string `json:"text,omitempty"`
}

func (g *Game) PublicState(plugin.Common) json.RawMessage {
	data, _ := json.Marshal(g.state)
	return data
}

func (g *Game) StateForPlayer(plugin.Common, protocol.PlayerId) json.RawMessage {
	return json.RawMessage(`null`)
}

func (g *Game) OnJoin(_ plugin.Common, player protocol.PlayerId) plugin.Updates {
	g.note(player, "joined")
	return plugin.Changed()
}

func (g *Game) OnLeave(_ plugin.Common, player protocol.PlayerId) plugin.Updates {
	g.note(player, "left")
	return plugin.Changed()
}

func (g *Game) OnKick(_ plugin.Common, player protocol.PlayerId) plugin.Updates {
	g.note(player, "kicked out")
	return plugin.Changed()
}

func (g *Game) OnDisconnect(_ plugin.Common, player protocol.PlayerId) plugin.Updates {
	g.note(player, "disconnected")
	return plugin.Changed()
}

func (g *Game) OnReconnect(_ plugin.Common, player protocol.PlayerId) plugin.Updates {
	g.note(player, "reconnected")
	return plugin.Changed()
}

func (g *Game) note(player protocol.PlayerId, text string) {
	g.state.Transcript = append(g.state.Transcript, Entry{Sender: player, Text: text, System: true})
}

func (g *Game) OnMessage(_ plugin.Common, sender protocol.PlayerId, value json.RawMessage) (plugin.Updates, json.RawMessage, error) {
	var msg userMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		errValue, _ := json.Marshal("invalid message")
		return plugin.Nothing, nil, plugin.NewGameError(errValue)
	}

	switch msg.Kind {
	case "chat":
		g.state.Transcript = append(g.state.Transcript, Entry{Sender: sender, Text: msg.Text})
		return plugin.Changed(), json.RawMessage(`null`), nil
	case "title":
		g.state.Title = msg.Text
		return plugin.Changed(), json.RawMessage(`null`), nil
	default:
		errValue, _ := json.Marshal(fmt.Sprintf("unknown message kind %q", msg.Kind))
		return plugin.Nothing, nil, plugin.NewGameError(errValue)
	}
}
