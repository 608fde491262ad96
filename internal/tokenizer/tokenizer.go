package tokenizer

import "fmt"

// Tokenizer maps text to token ids and back. The vocabulary algorithm is not
// this package's concern; callers only rely on this surface.
type Tokenizer interface {
	// Encode converts text to ids, optionally framed by the begin and end
	// markers.
	Encode(text string, addBegin, addEnd bool) ([]int, error)
	// Decode converts ids back to text. Ids with no text (pad) are skipped.
	Decode(ids []int) (string, error)
	BeginID() int
	EndID() int
	PadID() int
}

// Pieces decodes every id on its own, giving the text each token contributes.
func Pieces(tok Tokenizer, ids []int) ([]string, error) {
	out := make([]string, len(ids))
	for i, id := range ids {
		s, err := tok.Decode([]int{id})
		if err != nil {
			return nil, fmt.Errorf("decode token %d: %w", id, err)
		}
		out[i] = s
	}
	return out, nil
}

// SafeEncode calls Encode and turns a panic inside the tokenizer into an error.
func SafeEncode(tok Tokenizer, text string, addBegin, addEnd bool) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(text, addBegin, addEnd)
}
