package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitial(t *testing.T) {
	assert.Equal(t, "v1", Initial())
}

func TestNext(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"v1", "v2", false},
		{"v9", "v10", false},
		{"v10", "v11", false},
		{"v0", "", true},
		{"v01", "", true},
		{"1", "", true},
		{"vx", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := Next(tt.in)
		if tt.wantErr {
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidVersion)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestParse(t *testing.T) {
	n, err := Parse("v42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = Parse("v0")
	assert.Error(t, err)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("v1"))
	assert.True(t, Valid("v10"))
	assert.False(t, Valid("v0"))
	assert.False(t, Valid("v01"))
	assert.False(t, Valid("V1"))
	assert.False(t, Valid("v"))
}

func TestLess(t *testing.T) {
	assert.True(t, Less("v2", "v10"))
	assert.False(t, Less("v10", "v2"))
}
