// Package relay maps an inbound chat message to an outbound reply. It is the
// only piece of conversation logic the agent owns; everything model-related
// happens behind the injected backend.
package relay

import (
	"context"

	"github.com/aaronba/SimpleChatAgent/internal/logger"
)

// Apology is returned to the user when the backend fails. The failure itself
// is logged, never shown.
const Apology = "Sorry, I ran into a problem answering that. Please try again."

// Invoker is the backend contract the relay depends on.
type Invoker interface {
	Invoke(ctx context.Context, text string) (string, error)
}

// ChatTurn is the transient record of one exchange. It has no identity and
// is discarded once the response is sent.
type ChatTurn struct {
	Input      string
	Output     string
	Configured bool
}

// Relay dispatches messages to the resolved backend.
type Relay struct {
	backend    Invoker
	configured bool
}

// New creates a relay over the given backend.
func New(backend Invoker, configured bool) *Relay {
	return &Relay{backend: backend, configured: configured}
}

// Configured reports whether the relay talks to a remote service.
func (r *Relay) Configured() bool {
	return r.configured
}

// Respond produces the reply for one message. Backend failures never escape:
// they are logged and turned into a generic apology, so Output is always
// non-empty for non-empty input.
func (r *Relay) Respond(ctx context.Context, input string) ChatTurn {
	turn := ChatTurn{Input: input, Configured: r.configured}

	out, err := r.backend.Invoke(ctx, input)
	if err != nil {
		logger.L.Error("backend invocation failed", "error", err)
		turn.Output = Apology
		return turn
	}
	if out == "" && input != "" {
		logger.L.Warn("backend returned empty reply")
		turn.Output = Apology
		return turn
	}
	turn.Output = out
	return turn
}
