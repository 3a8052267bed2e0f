package core

// BaseInput carries fields shared by every tool input.
// Memory tools embed it so the caller's reasoning travels with the call
// and ends up in the logs next to what the call changed.
type BaseInput struct {
	// Thought is the caller's reason for using the tool.
	// Required by tools that change or remove memories.
	Thought string `json:"thought,omitempty"`
}

// GetThought returns the caller's stated reason, if any.
func (b BaseInput) GetThought() string {
	return b.Thought
}
