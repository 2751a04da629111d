package request

import "fmt"

// State is the lifecycle position of a Request.
type State uint8

const (
	// StateNew: decoded query accepted from a client, nothing attempted.
	StateNew State = iota
	// StateAccepted: upstream socket allocated, waiting to send.
	StateAccepted
	// StateForwarded: query sent upstream, waiting for the answer.
	StateForwarded
	// StateResponseReceived: a response is buffered for the client.
	StateResponseReceived
	// StateComplete: the response was handed to the client socket.
	StateComplete
	// StateError: the request failed and holds no resources.
	StateError
)

var stateNames = [...]string{
	StateNew:              "new",
	StateAccepted:         "accepted",
	StateForwarded:        "forwarded",
	StateResponseReceived: "response_received",
	StateComplete:         "complete",
	StateError:            "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}
