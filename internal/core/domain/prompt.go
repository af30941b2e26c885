package domain

import "time"

// SystemPrompt is one version of a named system prompt.
// Versions are append-only; at most one version per name is active.
type SystemPrompt struct {
	ID        string
	Name      string
	Version   int
	Content   string
	Author    string
	IsActive  bool
	CreatedAt time.Time
}
