package dialog

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/samcharles93/steve/internal/tokenizer"
)

// Prompt framing markers.
const (
	BeginInst = "[INST]"
	EndInst   = "[/INST]"
	BeginSys  = "<<SYS>>\n"
	EndSys    = "\n<</SYS>>\n\n"
)

// UnsafeContentMessage replaces the answer of a dialog that contains a
// reserved tag.
const UnsafeContentMessage = "Error: special tags are not allowed as part of the prompt."

// ReservedTags may not appear in user supplied content.
var ReservedTags = []string{BeginInst, EndInst, "<<SYS>>", "<</SYS>>"}

// HasReservedTags reports whether any message of d contains a reserved tag.
func HasReservedTags(d Dialog) bool {
	for _, m := range d {
		for _, tag := range ReservedTags {
			if strings.Contains(m.Content, tag) {
				return true
			}
		}
	}
	return false
}

// FoldSystemTurn merges a leading system message into the message after it:
//
//	<<SYS>>\n{system}\n<</SYS>>\n\n{next}
//
// The folded message keeps the role of the following message. d is never
// modified. A dialog without a leading system message is returned as a copy.
func FoldSystemTurn(d Dialog) (Dialog, error) {
	if len(d) == 0 || d[0].Role != RoleSystem {
		return d.Clone(), nil
	}
	if len(d) < 2 {
		return nil, &OrderError{Index: -1}
	}
	out := make(Dialog, 0, len(d)-1)
	out = append(out, Message{
		Role:     d[1].Role,
		Content:  BeginSys + d[0].Content + EndSys + d[1].Content,
		DialogID: d[1].DialogID,
	})
	return append(out, d[2:]...), nil
}

// Validate checks a folded dialog: user at even positions, assistant at odd
// positions, ending with a user message.
func Validate(d Dialog) error {
	if len(d) == 0 {
		return &OrderError{Index: -1}
	}
	for i, m := range d {
		want := RoleUser
		if i%2 == 1 {
			want = RoleAssistant
		}
		if m.Role != want {
			return &OrderError{Index: i, Role: m.Role, Want: want}
		}
	}
	if last := d[len(d)-1]; last.Role != RoleUser {
		return &OrderError{Index: len(d) - 1, Role: last.Role, Want: RoleUser}
	}
	return nil
}

// Encoded is a dialog ready for generation.
type Encoded struct {
	DialogID string
	// Messages is the folded dialog, every message tagged with DialogID.
	Messages Dialog
	Tokens   []int
	// Unsafe is set when the raw dialog contained a reserved tag.
	Unsafe bool
}

// Encoder turns dialogs into prompt tokens.
type Encoder struct {
	tok   tokenizer.Tokenizer
	newID func() string
}

// NewEncoder returns an Encoder over tok.
func NewEncoder(tok tokenizer.Tokenizer) *Encoder {
	return &Encoder{tok: tok, newID: newDialogID}
}

func newDialogID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Encode folds, validates and tokenizes d. Each completed (user, assistant)
// pair is encoded as "[INST] {user} [/INST] {assistant} " framed by the
// begin and end markers; the final user turn as "[INST] {user} [/INST]" with
// only the begin marker. Contents are trimmed of surrounding whitespace.
func (e *Encoder) Encode(d Dialog) (*Encoded, error) {
	unsafe := HasReservedTags(d)
	folded, err := FoldSystemTurn(d)
	if err != nil {
		return nil, err
	}
	if err := Validate(folded); err != nil {
		return nil, err
	}

	id := e.newID()
	for i := range folded {
		folded[i].DialogID = id
	}

	var ids []int
	for i := 0; i+1 < len(folded); i += 2 {
		text := fmt.Sprintf("%s %s %s %s ",
			BeginInst, strings.TrimSpace(folded[i].Content),
			EndInst, strings.TrimSpace(folded[i+1].Content))
		pair, err := tokenizer.SafeEncode(e.tok, text, true, true)
		if err != nil {
			return nil, fmt.Errorf("encode turn %d: %w", i/2, err)
		}
		ids = append(ids, pair...)
	}
	last := fmt.Sprintf("%s %s %s", BeginInst, strings.TrimSpace(folded[len(folded)-1].Content), EndInst)
	tail, err := tokenizer.SafeEncode(e.tok, last, true, false)
	if err != nil {
		return nil, fmt.Errorf("encode final turn: %w", err)
	}
	ids = append(ids, tail...)

	return &Encoded{DialogID: id, Messages: folded, Tokens: ids, Unsafe: unsafe}, nil
}
