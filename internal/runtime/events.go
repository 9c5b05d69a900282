package runtime

import "gameforge/pkg/protocol"

// Writer is the runtime's handle onto a connection's write half. It must
// never block the event loop: implementations enqueue and report failure
// (or silently drop) rather than perform the actual socket write inline.
type Writer interface {
	Send(msg protocol.ServerMessage) error
}

// Event is one item the connection adapters push into the runtime's bounded
// event channel.
type Event struct {
	Conn protocol.ConnectionId
	Data EventData
}

// EventData is the closed set of things that can happen to a connection.
type EventData interface{ isEventData() }

// Connected reports a freshly accepted socket, handing its write half to
// the runtime.
type Connected struct {
	Writer Writer
}

// Disconnected reports a socket that has closed.
type Disconnected struct{}

// MessageReceived carries a successfully decoded client message.
type MessageReceived struct {
	Msg protocol.ClientMessage
}

// InvalidMessage reports a frame that failed to decode as a ClientMessage.
type InvalidMessage struct {
	Err error
}

func (Connected) isEventData()       {}
func (Disconnected) isEventData()    {}
func (MessageReceived) isEventData() {}
func (InvalidMessage) isEventData()  {}
