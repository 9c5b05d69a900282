// Package schelling implements a guess-the-crowd party game: players answer
// a shared question, the round closes once enough of them have answered,
// and a short delay (scheduled through the plug-in's timer mechanism) opens
// the next round. It exercises OnEvent and the leader-only command gating
// that the core itself deliberately leaves to game plug-ins.
package schelling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gameforge/internal/plugin"
	"gameforge/pkg/protocol"
)

// Settings are the tunables the lobby leader controls.
type Settings struct {
	AnswerPercentage int           `json:"answer_percentage"`
	RoundDelay       time.Duration `json:"round_delay"`
	Anonymize        bool          `json:"anonymize"`
}

func defaultSettings() Settings {
	return Settings{AnswerPercentage: 51, RoundDelay: 5 * time.Second, Anonymize: false}
}

// HistoryRound is one completed round's question and tally of answers.
type HistoryRound struct {
	Question string         `json:"question"`
	Tally    map[string]int `json:"tally"`
}

// Round is the question currently being answered.
type Round struct {
	Question string                       `json:"-"`
	Guesses  map[protocol.PlayerId]string `json:"-"`
}

// publicRound is what every member sees: the question and who has answered,
// never the answers themselves until the round closes.
type publicRound struct {
	Question string              `json:"question"`
	Answered []protocol.PlayerId `json:"answered"`
}

type publicState struct {
	Settings     Settings            `json:"settings"`
	History      []HistoryRound      `json:"history"`
	CurrentRound *publicRound        `json:"current_round"`
	Queue        []string            `json:"question_queue"`
	Running      bool                `json:"running"`
	Delay        bool                `json:"delay"`
}

// Game is the schelling plug-in's state. The zero value is an empty,
// unstarted lobby.
type Game struct {
	settings Settings
	history  []HistoryRound
	round    *Round
	queue    []string
	running  bool
	delay    bool

	timerArmed bool
}

// New constructs a fresh, unstarted schelling lobby. Used as a
// registry.Constructor.
func New() plugin.Game {
	return &Game{settings: defaultSettings()}
}

type userMessage struct {
	Kind     string `json:"kind"`
	Question string `json:"question,omitempty"`
	Guess    string `json:"guess,omitempty"`
	Settings *Settings `json:"settings,omitempty"`
}

func normalize(guess string) string { return strings.ToLower(strings.TrimSpace(guess)) }

func (g *Game) advance(common plugin.Common) plugin.Updates {
	if g.round != nil {
		answered := float64(len(g.round.Guesses))
		total := float64(len(common.Members))
		if total > 0 && answered/total*100 >= float64(g.settings.AnswerPercentage) {
			tally := make(map[string]int)
			for _, guess := range g.round.Guesses {
				tally[normalize(guess)]++
			}
			g.history = append(g.history, HistoryRound{Question: g.round.Question, Tally: tally})
			g.round = nil
			g.delay = true
		}
	}

	updates := plugin.Changed()
	if g.round == nil && g.running && !g.delay && len(g.queue) > 0 {
		g.round = &Round{Question: g.queue[0], Guesses: make(map[protocol.PlayerId]string)}
		g.queue = g.queue[1:]
	}
	if g.delay && !g.timerArmed {
		g.timerArmed = true
		updates.Timers = append(updates.Timers, plugin.Timer{
			EventId:  protocol.NewEventId(),
			Deadline: time.Now().Add(g.settings.RoundDelay),
		})
	}
	return updates
}

func (g *Game) PublicState(plugin.Common) json.RawMessage {
	var current *publicRound
	if g.round != nil {
		answered := make([]protocol.PlayerId, 0, len(g.round.Guesses))
		for p := range g.round.Guesses {
			answered = append(answered, p)
		}
		current = &publicRound{Question: g.round.Question, Answered: protocol.SortPlayerIds(answered)}
	}
	data, _ := json.Marshal(publicState{
		Settings:     g.settings,
		History:      g.history,
		CurrentRound: current,
		Queue:        g.queue,
		Running:      g.running,
		Delay:        g.delay,
	})
	return data
}

func (g *Game) StateForPlayer(_ plugin.Common, player protocol.PlayerId) json.RawMessage {
	if g.round == nil {
		return json.RawMessage(`null`)
	}
	guess, ok := g.round.Guesses[player]
	if !ok {
		return json.RawMessage(`null`)
	}
	data, _ := json.Marshal(guess)
	return data
}

func (g *Game) OnEvent(common plugin.Common, _ protocol.EventId) plugin.Updates {
	g.delay = false
	g.timerArmed = false
	return g.advance(common)
}

func (g *Game) OnMessage(common plugin.Common, sender protocol.PlayerId, value json.RawMessage) (plugin.Updates, json.RawMessage, error) {
	var msg userMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		errValue, _ := json.Marshal("invalid message")
		return plugin.Nothing, nil, plugin.NewGameError(errValue)
	}

	leaderOnly := func(action string) (plugin.Updates, json.RawMessage, error) {
		errValue, _ := json.Marshal(fmt.Sprintf("only the leader can %s", action))
		return plugin.Nothing, nil, plugin.NewGameError(errValue)
	}

	switch msg.Kind {
	case "settings":
		if sender != common.Leader {
			return leaderOnly("change settings")
		}
		if msg.Settings != nil {
			g.settings = *msg.Settings
		}
	case "propose":
		g.queue = append(g.queue, msg.Question)
	case "guess":
		if g.round != nil {
			g.round.Guesses[sender] = msg.Guess
		}
	case "start":
		if sender != common.Leader {
			return leaderOnly("start the game")
		}
		g.running = true
	case "pause":
		if sender != common.Leader {
			return leaderOnly("pause the game")
		}
		g.running = false
	case "advance":
		if sender != common.Leader {
			return leaderOnly("advance the game")
		}
	default:
		errValue, _ := json.Marshal(fmt.Sprintf("unknown message kind %q", msg.Kind))
		return plugin.Nothing, nil, plugin.NewGameError(errValue)
	}

	updates := g.advance(common)
	return updates, json.RawMessage(`null`), nil
}

func (g *Game) CanJoin(plugin.Common) bool      { return true }
func (g *Game) CanReconnect(plugin.Common) bool { return true }

func (g *Game) OnJoin(plugin.Common, protocol.PlayerId) plugin.Updates       { return plugin.Changed() }
func (g *Game) OnLeave(plugin.Common, protocol.PlayerId) plugin.Updates      { return plugin.Changed() }
func (g *Game) OnKick(plugin.Common, protocol.PlayerId) plugin.Updates       { return plugin.Changed() }
func (g *Game) OnDisconnect(plugin.Common, protocol.PlayerId) plugin.Updates { return plugin.Nothing }
func (g *Game) OnReconnect(plugin.Common, protocol.PlayerId) plugin.Updates  { return plugin.Nothing }
