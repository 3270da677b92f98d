package pwdpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-ntsd/ntsd/ntsd"
)

func TestApply_EnableFromEmptyDACL(t *testing.T) {
	dacl, changed, err := apply(ntsd.ACL{}, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, len(dacl.AceList()))
}

func TestApply_EnableIsIdempotent(t *testing.T) {
	dacl, changed, err := apply(ntsd.ACL{}, true)
	require.NoError(t, err)
	require.True(t, changed)

	again, changed, err := apply(dacl, true)
	require.NoError(t, err)
	assert.False(t, changed, "enabling twice should report no change the second time")
	assert.Equal(t, string(dacl), string(again))
}

func TestApply_EnableRemovesStaleAllowACE(t *testing.T) {
	allow, err := allowEveryoneACE()
	require.NoError(t, err)
	dacl := ntsd.NewACL(allow, false)

	newDACL, changed, err := apply(dacl, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, -1, newDACL.AceIndex(allow))

	deny, err := denyEveryoneACE()
	require.NoError(t, err)
	assert.NotEqual(t, -1, newDACL.AceIndex(deny))
}

func TestApply_DisableRemovesDenyACEsAndAddsAllow(t *testing.T) {
	enabled, changed, err := apply(ntsd.ACL{}, true)
	require.NoError(t, err)
	require.True(t, changed)

	disabled, changed, err := apply(enabled, false)
	require.NoError(t, err)
	assert.True(t, changed)

	deny, err := denyEveryoneACE()
	require.NoError(t, err)
	assert.Equal(t, -1, disabled.AceIndex(deny))

	allow, err := allowEveryoneACE()
	require.NoError(t, err)
	assert.NotEqual(t, -1, disabled.AceIndex(allow))
}

func TestApply_DisableIsIdempotent(t *testing.T) {
	disabled, changed, err := apply(ntsd.ACL{}, false)
	require.NoError(t, err)
	require.True(t, changed)

	again, changed, err := apply(disabled, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, string(disabled), string(again))
}

func TestHasClass(t *testing.T) {
	assert.True(t, hasClass([]string{"top", "User"}, "user"))
	assert.False(t, hasClass([]string{"top", "computer"}, "user"))
}
