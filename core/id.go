package core

import "github.com/google/uuid"

// NewID returns a random UUID string used for run, plan and tool call ids.
func NewID() string { return uuid.NewString() }
