package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortCommit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "0123456789ab", shortCommit("0123456789abcdef"))
	assert.Equal(t, "abc", shortCommit("abc"), "short commits are kept")
}

func TestResolveAlwaysHasVersion(t *testing.T) {
	t.Parallel()
	info := Resolve()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, String(), info.Version)
}
