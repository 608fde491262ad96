package dialog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialogString(t *testing.T) {
	t.Parallel()

	d := Dialog{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hi"},
	}
	assert.Equal(t, "system: be brief\nuser: hi", d.String())
	assert.Empty(t, Dialog(nil).String())
}

func TestDialogCloneIsIndependent(t *testing.T) {
	t.Parallel()

	d := Dialog{{Role: RoleUser, Content: "hi"}}
	c := d.Clone()
	c[0].Content = "changed"
	assert.Equal(t, "hi", d[0].Content)
	assert.Nil(t, Dialog(nil).Clone())
}
