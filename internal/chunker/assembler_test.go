package chunker

import (
	"bytes"
	"testing"

	"github.com/maneesh/fileingest/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestAssemblerPreservesOrder(t *testing.T) {
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	for _, size := range []int{1, 7, 64, 999, 1000, 4096} {
		a := NewAssembler()
		a.Add(&models.UploadChunk{Filename: "f.bin", Mimetype: "application/octet-stream"})
		for off := 0; off < len(payload); off += size {
			end := off + size
			if end > len(payload) {
				end = len(payload)
			}
			a.Add(&models.UploadChunk{FileChunk: payload[off:end]})
		}

		assert.Equal(t, payload, a.Payload(), "chunk size %d", size)
		assert.Equal(t, int64(len(payload)), a.Size(), "chunk size %d", size)
	}
}

func TestAssemblerLastControlWins(t *testing.T) {
	a := NewAssembler()
	a.Add(&models.UploadChunk{Filename: "first.txt", Mimetype: "text/plain"})
	a.Add(&models.UploadChunk{FileChunk: []byte("ab")})
	a.Add(&models.UploadChunk{Filename: "second.csv", Mimetype: "text/csv", FileChunk: []byte("cd")})
	a.Add(&models.UploadChunk{FileChunk: []byte("ef")})

	assert.Equal(t, "second.csv", a.Filename())
	assert.Equal(t, "text/csv", a.Mimetype())
	assert.Equal(t, 3, a.ChunkCount())
	assert.Equal(t, []byte("abcdef"), a.Payload())
}

func TestAssemblerIgnoresEmptyMessages(t *testing.T) {
	a := NewAssembler()
	a.Add(nil)
	a.Add(&models.UploadChunk{})
	a.Add(&models.UploadChunk{Filename: "x", FileChunk: []byte{}})

	assert.True(t, a.Empty())
	assert.Equal(t, "x", a.Filename())
	assert.Zero(t, a.Size())
}

func TestAssemblerReset(t *testing.T) {
	a := NewAssembler()
	a.Add(&models.UploadChunk{FileChunk: bytes.Repeat([]byte{1}, 10)})
	a.Reset()

	assert.True(t, a.Empty())
	assert.Zero(t, a.Size())
}
