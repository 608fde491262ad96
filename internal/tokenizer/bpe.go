package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	// DefaultEncoding is the BPE encoding used when none is configured.
	DefaultEncoding = "cl100k_base"

	endToken   = "<|endoftext|>"
	beginToken = "<|endofprompt|>"

	// padID never names a real token; decoding skips it.
	padID = -1
)

func init() {
	// Use the embedded dictionaries so construction never hits the network.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// BPE is a Tokenizer backed by tiktoken byte-pair encodings. The encoding's
// <|endofprompt|> token serves as the begin marker and <|endoftext|> as the
// end marker.
type BPE struct {
	enc   *tiktoken.Tiktoken
	name  string
	begin int
	end   int
}

// NewBPE loads the named encoding ("cl100k_base", "o200k_base").
func NewBPE(encoding string) (*BPE, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", encoding, err)
	}
	begin, err := specialID(enc, beginToken)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", encoding, err)
	}
	end, err := specialID(enc, endToken)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %w", encoding, err)
	}
	return &BPE{enc: enc, name: encoding, begin: begin, end: end}, nil
}

func specialID(enc *tiktoken.Tiktoken, token string) (id int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("special token %s: %v", token, rec)
		}
	}()
	ids := enc.Encode(token, []string{token}, nil)
	if len(ids) != 1 {
		return 0, fmt.Errorf("special token %s is not a single id (got %d)", token, len(ids))
	}
	return ids[0], nil
}

// Name returns the encoding name.
func (t *BPE) Name() string { return t.name }

// Encode implements Tokenizer. Special-token text inside input is encoded as
// ordinary text and never produces a control id.
func (t *BPE) Encode(text string, addBegin, addEnd bool) ([]int, error) {
	body := t.enc.EncodeOrdinary(text)
	ids := make([]int, 0, len(body)+2)
	if addBegin {
		ids = append(ids, t.begin)
	}
	ids = append(ids, body...)
	if addEnd {
		ids = append(ids, t.end)
	}
	return ids, nil
}

// Decode implements Tokenizer. Begin and end markers are dropped from the text.
func (t *BPE) Decode(ids []int) (string, error) {
	kept := make([]int, 0, len(ids))
	for _, id := range ids {
		if id == t.begin || id == t.end || id < 0 {
			continue
		}
		kept = append(kept, id)
	}
	return t.enc.Decode(kept), nil
}

func (t *BPE) BeginID() int { return t.begin }
func (t *BPE) EndID() int   { return t.end }
func (t *BPE) PadID() int   { return padID }

// VocabSize is one past the largest id this tokenizer can produce.
func (t *BPE) VocabSize() int {
	return max(t.begin, t.end) + 1
}
