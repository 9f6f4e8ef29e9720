// Package history provides read-only access to the command history: the
// reference list of previously confirmed command/action pairs the heuristic
// matcher searches. The core never mutates this data — corrections are
// relayed to the server, which owns the canonical history.
package history

import "context"

// ActionDescriptor describes the action paired with a spoken command.
type ActionDescriptor struct {
	// Name identifies the action (e.g., "click", "type_text", "open_url").
	Name string `yaml:"name" json:"name"`

	// Params holds action-specific arguments (coordinates, text, …).
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// CommandPair is one history entry: the command as the user spoke it and the
// action that was executed for it.
type CommandPair struct {
	UserCommand string           `yaml:"user_command" json:"user_command"`
	Action      ActionDescriptor `yaml:"action" json:"action"`
}

// Store is the read-only command-history source.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// List returns all known command pairs.
	List(ctx context.Context) ([]CommandPair, error)
}
