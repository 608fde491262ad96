package dialog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// ErrNoDialogs is returned for an empty dialog list.
var ErrNoDialogs = errors.New("no dialogs")

// Decode reads a JSON array of dialogs, each an array of messages with
// "role" and "content".
func Decode(r io.Reader) ([]Dialog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return nil, errors.New("dialogs must be a JSON array of dialogs")
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode dialogs: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrNoDialogs
	}
	out := make([]Dialog, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '[' {
			return nil, fmt.Errorf("dialog %d: must be a JSON array of messages", i)
		}
		var d Dialog
		if err := json.Unmarshal(item, &d); err != nil {
			return nil, fmt.Errorf("dialog %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadFile reads dialogs from a JSON file.
func LoadFile(path string) ([]Dialog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ds, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}
