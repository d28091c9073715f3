package isa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromString(t *testing.T) {
	tests := []struct {
		name string
		want Set
	}{
		{"arm", ARM},
		{"thumb2", Thumb2},
		{"arm64", ARM64},
		{"x86", X86},
		{"x86_64", X86_64},
		{"mips", MIPS},
	}
	for _, tt := range tests {
		got, err := FromString(tt.name)
		require.Nil(t, err)
		require.Equal(t, tt.want, got)
	}

	_, err := FromString("sparc")
	require.NotNil(t, err)
}

func TestNormalizeARM(t *testing.T) {
	// Generic ARM always lowers to Thumb2 so the runtime's implicit exception
	// handling assumptions hold.
	require.Equal(t, Thumb2, Normalize(ARM))
	require.Equal(t, Thumb2, Normalize(Thumb2))
	require.Equal(t, ARM64, Normalize(ARM64))
	require.Equal(t, MIPS, Normalize(MIPS))
}

func TestSupported(t *testing.T) {
	require.True(t, Supported(Thumb2))
	require.True(t, Supported(ARM64))
	require.True(t, Supported(X86))
	require.True(t, Supported(X86_64))
	require.False(t, Supported(MIPS))
	require.False(t, Supported(None))
	// ARM itself is unsupported until normalized.
	require.True(t, Supported(Normalize(ARM)))
}

func TestCoreRegisters(t *testing.T) {
	require.Equal(t, 8, CoreRegisters(Thumb2))
	require.Equal(t, 16, CoreRegisters(ARM64))
	require.Equal(t, 0, CoreRegisters(MIPS))
}
