package runtime

import "gameforge/pkg/protocol"

// publishTarget is "broadcast to all current members" (all=true) or "send to
// exactly these players" (the players set).
type publishTarget struct {
	all     bool
	players map[protocol.PlayerId]struct{}
}

// publishPlan is the per-event-tick accumulator the publish planner uses to
// collapse every send requested while processing one event into the
// minimal set of outbound GameInfo frames.
type publishPlan struct {
	targets map[protocol.GameId]*publishTarget
}

func newPublishPlan() *publishPlan {
	return &publishPlan{targets: make(map[protocol.GameId]*publishTarget)}
}

// addAll marks g for a full broadcast, overriding any previously queued
// partial send for the same lobby.
func (p *publishPlan) addAll(g protocol.GameId) {
	p.targets[g] = &publishTarget{all: true}
}

// add queues a targeted send to player for lobby g. If g is already
// broadcasting to everyone this is a no-op; if g has no entry yet it
// becomes a fresh singleton target set.
func (p *publishPlan) add(g protocol.GameId, player protocol.PlayerId) {
	t, ok := p.targets[g]
	if !ok {
		p.targets[g] = &publishTarget{players: map[protocol.PlayerId]struct{}{player: {}}}
		return
	}
	if t.all {
		return
	}
	if t.players == nil {
		t.players = make(map[protocol.PlayerId]struct{})
	}
	t.players[player] = struct{}{}
}

// reset clears the plan for the next event tick.
func (p *publishPlan) reset() {
	p.targets = make(map[protocol.GameId]*publishTarget)
}

// empty reports whether the plan has nothing queued.
func (p *publishPlan) empty() bool { return len(p.targets) == 0 }
