package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{DecayScore: 0.7312, ID: 42}
	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, token := range []string{"???", "not base64!!", "YWJjZGVm"} {
		_, err := DecodeCursor(token)
		assert.ErrorIs(t, err, ErrInvalidInput, "token %q", token)
	}
}

func TestCursorTokenIsOpaqueURLSafe(t *testing.T) {
	token := Cursor{DecayScore: 1.0, ID: 9999999}.Encode()
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")
}
