package chunker

import (
	"bytes"
	"errors"
	"testing"

	"github.com/maneesh/fileingest/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkStreamSplitsInOrder(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefghij"), 15) // 150 bytes
	c := NewChunker(50)

	var chunks []*models.ChunkData
	total, err := c.ChunkStream(bytes.NewReader(payload), func(cd *models.ChunkData) error {
		chunks = append(chunks, cd)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)
	require.Len(t, chunks, 3)

	for i, cd := range chunks {
		assert.Equal(t, i, cd.OrderIndex)
		assert.Equal(t, int64(50), cd.Size)
		assert.Equal(t, payload[i*50:(i+1)*50], cd.Data)
	}
}

func TestChunkStreamShortTail(t *testing.T) {
	c := NewChunker(4)

	var sizes []int64
	total, err := c.ChunkStream(bytes.NewReader([]byte("0123456789")), func(cd *models.ChunkData) error {
		sizes = append(sizes, cd.Size)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)
	assert.Equal(t, []int64{4, 4, 2}, sizes)
}

func TestChunkStreamEmptyReader(t *testing.T) {
	c := NewChunker(DefaultChunkSize)

	called := false
	total, err := c.ChunkStream(bytes.NewReader(nil), func(*models.ChunkData) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.False(t, called)
}

func TestChunkStreamStopsOnCallbackError(t *testing.T) {
	c := NewChunker(2)
	boom := errors.New("send failed")

	calls := 0
	_, err := c.ChunkStream(bytes.NewReader([]byte("abcdef")), func(*models.ChunkData) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestNewChunkerDefaultsSize(t *testing.T) {
	assert.Equal(t, int64(DefaultChunkSize), NewChunker(0).ChunkSize())
}

func TestReassembleChunks(t *testing.T) {
	out := ReassembleChunks([][]byte{[]byte("ab"), nil, []byte("c"), []byte("def")})
	assert.Equal(t, []byte("abcdef"), out)
}

func TestComputeHash(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		ComputeHash([]byte("hello")))
}
