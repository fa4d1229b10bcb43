package reassemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeepNewBytesLastAlwaysNew(t *testing.T) {
	for _, start := range []startCase{startBefore, startSame, startAfter} {
		for _, end := range []endCase{endBefore, endSame, endAfter} {
			assert.True(t, keepNewBytes(PolicyLast, start, end))
		}
	}
}

func TestKeepNewBytesFirstAndVistaAlwaysOld(t *testing.T) {
	for _, policy := range []OSPolicy{PolicyFirst, PolicyVista} {
		for _, start := range []startCase{startBefore, startSame, startAfter} {
			for _, end := range []endCase{endBefore, endSame, endAfter} {
				assert.False(t, keepNewBytes(policy, start, end))
			}
		}
	}
}

func TestKeepNewBytesSolarisHPUX11(t *testing.T) {
	for _, policy := range []OSPolicy{PolicySolaris, PolicyHPUX11} {
		assert.True(t, keepNewBytes(policy, startBefore, endAfter))
		assert.True(t, keepNewBytes(policy, startSame, endSame))
		assert.False(t, keepNewBytes(policy, startAfter, endBefore))
	}
}

func TestKeepNewBytesBSDDefault(t *testing.T) {
	assert.True(t, keepNewBytes(PolicyBSD, startBefore, endBefore))
	assert.True(t, keepNewBytes(PolicyBSD, startSame, endAfter))
	assert.False(t, keepNewBytes(PolicyBSD, startAfter, endAfter))
}

func TestKeepNewBytesLinuxStartsAtSame(t *testing.T) {
	// LINUX behaves like the default rule except when new starts exactly
	// where old starts, where it requires new to also extend past old's
	// end before it's preferred.
	assert.True(t, keepNewBytes(PolicyLinux, startSame, endAfter))
	assert.False(t, keepNewBytes(PolicyLinux, startSame, endSame))
	assert.False(t, keepNewBytes(PolicyLinux, startSame, endBefore))
	assert.True(t, keepNewBytes(PolicyLinux, startBefore, endBefore))
	assert.False(t, keepNewBytes(PolicyLinux, startAfter, endAfter))
}

func TestKeepNewBytesOldLinuxStartsAtSame(t *testing.T) {
	assert.True(t, keepNewBytes(PolicyOldLinux, startSame, endAfter))
	assert.True(t, keepNewBytes(PolicyOldLinux, startSame, endSame))
	assert.False(t, keepNewBytes(PolicyOldLinux, startSame, endBefore))
}

func TestClassifyStartEnd(t *testing.T) {
	assert.Equal(t, startBefore, classifyStart(10, 20))
	assert.Equal(t, startSame, classifyStart(20, 20))
	assert.Equal(t, startAfter, classifyStart(30, 20))

	assert.Equal(t, endBefore, classifyEnd(10, 20))
	assert.Equal(t, endSame, classifyEnd(20, 20))
	assert.Equal(t, endAfter, classifyEnd(30, 20))
}
