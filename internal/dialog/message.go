// Package dialog holds chat messages and turns dialogs into model prompts.
package dialog

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole accepts exactly "system", "user" and "assistant".
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleSystem, RoleUser, RoleAssistant:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) String() string { return string(r) }

// Message is one turn of a dialog.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// DialogID groups every message of one encoded dialog.
	DialogID string `json:"dialog_id,omitempty"`
}

// NewMessage builds a Message, rejecting unknown roles.
func NewMessage(role, content string) (Message, error) {
	r, err := ParseRole(role)
	if err != nil {
		return Message{}, err
	}
	return Message{Role: r, Content: content}, nil
}

// UnmarshalJSON requires role and content and a known role.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw struct {
		Role     *string `json:"role"`
		Content  *string `json:"content"`
		DialogID string  `json:"dialog_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Role == nil {
		return fmt.Errorf("message is missing %q", "role")
	}
	if raw.Content == nil {
		return fmt.Errorf("message is missing %q", "content")
	}
	r, err := ParseRole(*raw.Role)
	if err != nil {
		return err
	}
	*m = Message{Role: r, Content: *raw.Content, DialogID: raw.DialogID}
	return nil
}

// Dialog is an ordered conversation.
type Dialog []Message

// Clone returns a copy that shares nothing with d.
func (d Dialog) Clone() Dialog {
	if d == nil {
		return nil
	}
	out := make(Dialog, len(d))
	copy(out, d)
	return out
}

// String renders d as "role: content" lines, mostly for logs.
func (d Dialog) String() string {
	var b strings.Builder
	for i, m := range d {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}
