package turn

import "fmt"

// Role identifies the author of a conversation turn.
type Role string

// Turn role constants.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role is one of the supported values.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is a single conversation turn (immutable value object).
type Turn struct {
	role    Role
	content string
}

// New validates and creates a Turn.
func New(role Role, content string) (Turn, error) {
	if !role.IsValid() {
		return Turn{}, fmt.Errorf("invalid turn role: %q", role)
	}
	if content == "" {
		return Turn{}, fmt.Errorf("turn content is required")
	}
	return Turn{role: role, content: content}, nil
}

// Reconstruct creates a Turn without validation (storage hydration).
func Reconstruct(role Role, content string) Turn {
	return Turn{role: role, content: content}
}

// Role returns the turn author.
func (t Turn) Role() Role { return t.role }

// Content returns the turn text.
func (t Turn) Content() string { return t.content }

// Equal reports an exact match on both role and content.
func (t Turn) Equal(other Turn) bool {
	return t.role == other.role && t.content == other.content
}
