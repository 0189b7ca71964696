package embedding_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/korelabs/kore/internal/embedding"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	vec := []float32{0.25, -0.5, 0.75, 1.0, -0.0625}

	blob := embedding.Encode(vec)
	assert.Len(t, blob, len(vec)*4)

	got, err := embedding.Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}

func TestDecodeRejectsTruncatedBlob(t *testing.T) {
	_, err := embedding.Decode([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDecodeEmptyBlob(t *testing.T) {
	got, err := embedding.Decode(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDotOfNormalizedVectors(t *testing.T) {
	a := embedding.Normalize([]float32{3, 4})
	b := embedding.Normalize([]float32{3, 4})
	c := embedding.Normalize([]float32{-4, 3})

	assert.InDelta(t, 1.0, embedding.Dot(a, b), 1e-6, "identical vectors")
	assert.InDelta(t, 0.0, embedding.Dot(a, c), 1e-6, "orthogonal vectors")
}

func TestDotMismatchedLengths(t *testing.T) {
	assert.Zero(t, embedding.Dot([]float32{1, 0}, []float32{1}))
}

func TestNormalize(t *testing.T) {
	vec := embedding.Normalize([]float32{3, 4})

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	zero := []float32{0, 0, 0}
	assert.Equal(t, zero, embedding.Normalize(zero))
}
