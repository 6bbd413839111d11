package enricher

import (
	"github.com/gorilla/websocket"

	loggerpkg "github.com/minhyannv/vocab-enricher/pkg/logger"
	"github.com/minhyannv/vocab-enricher/pkg/synonyms"
)

// Option configures optional runtime dependencies for Run.
type Option func(*runDeps)

type runDeps struct {
	logger    loggerpkg.Logger
	completer synonyms.Completer
	dialer    *websocket.Dialer
	runID     string
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger) Option {
	return func(d *runDeps) {
		d.logger = l
	}
}

// WithCompleter replaces the OpenAI client used for synonym generation.
func WithCompleter(c synonyms.Completer) Option {
	return func(d *runDeps) {
		d.completer = c
	}
}

// WithDialer replaces the WebSocket dialer used to reach the engine.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(d *runDeps) {
		d.dialer = dialer
	}
}

// WithRunID fixes the run id attached to every log line.
func WithRunID(id string) Option {
	return func(d *runDeps) {
		d.runID = id
	}
}
