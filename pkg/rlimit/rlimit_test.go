package rlimit

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	limits, err := Parse("nofile 1024 2048; core 0; cpu unlimited")
	require.NoError(t, err)
	require.Len(t, limits, 3)

	assert.Equal(t, syscall.RLIMIT_NOFILE, limits[0].Res)
	assert.Equal(t, uint64(1024), limits[0].Rlim.Cur)
	assert.Equal(t, uint64(2048), limits[0].Rlim.Max)

	assert.Equal(t, syscall.RLIMIT_CORE, limits[1].Res)
	assert.Equal(t, uint64(0), limits[1].Rlim.Cur)
	assert.Equal(t, uint64(0), limits[1].Rlim.Max)

	assert.Equal(t, syscall.RLIMIT_CPU, limits[2].Res)
	assert.Equal(t, unlimited, limits[2].Rlim.Cur)
}

func TestParse_Empty(t *testing.T) {
	limits, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, limits)
}

func TestParse_Invalid(t *testing.T) {
	for _, value := range []string{
		"bogus 1",
		"nofile",
		"nofile one",
		"nofile 1 2 3",
		"nofile 10 5",
		"nofile unlimited 5",
	} {
		_, err := Parse(value)
		assert.Error(t, err, value)
	}
}

func TestRLimit_String(t *testing.T) {
	limits, err := Parse("stack 8388608")
	require.NoError(t, err)
	assert.Equal(t, "stack[8388608:8388608]", limits[0].String())
}
