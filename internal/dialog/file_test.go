package dialog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDialogs(t *testing.T) {
	t.Parallel()
	in := `[
		[{"role": "user", "content": "what is the recipe of mayonnaise?"}],
		[
			{"role": "system", "content": "Always answer with Haiku"},
			{"role": "user", "content": "I am going to Paris, what should I see?"}
		]
	]`
	ds, err := Decode(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, RoleUser, ds[0][0].Role)
	assert.Equal(t, RoleSystem, ds[1][0].Role)
	assert.Equal(t, "I am going to Paris, what should I see?", ds[1][1].Content)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"empty list":      `[]`,
		"not an array":    `{"role": "user"}`,
		"dialog object":   `[{"role": "user", "content": "x"}]`,
		"missing role":    `[[{"content": "x"}]]`,
		"missing content": `[[{"role": "user"}]]`,
		"unknown role":    `[[{"role": "tool", "content": "x"}]]`,
		"garbage":         `[[`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(strings.NewReader(in))
			require.Error(t, err)
		})
	}
	_, err := Decode(strings.NewReader(`[]`))
	require.ErrorIs(t, err, ErrNoDialogs)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dialogs.json")
	require.NoError(t, os.WriteFile(path, []byte(`[[{"role":"user","content":"hi","dialog_id":"abc"}]]`), 0o644))

	ds, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "abc", ds[0][0].DialogID)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
