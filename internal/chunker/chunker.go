package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/maneesh/fileingest/internal/models"
)

// DefaultChunkSize is the size of data messages sent by the gateway (64 KiB)
const DefaultChunkSize = 64 * 1024

// Chunker splits payloads into fixed-size chunks
type Chunker struct {
	chunkSize int64
}

// NewChunker creates a new chunker with the specified chunk size
func NewChunker(chunkSize int64) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunker{
		chunkSize: chunkSize,
	}
}

// ChunkSize returns the configured chunk size in bytes
func (c *Chunker) ChunkSize() int64 {
	return c.chunkSize
}

// ChunkStream reads from a reader and hands each chunk to fn in order.
// It returns the total number of bytes read.
func (c *Chunker) ChunkStream(reader io.Reader, fn func(*models.ChunkData) error) (int64, error) {
	var totalSize int64
	orderIndex := 0

	for {
		buffer := make([]byte, c.chunkSize)
		n, err := io.ReadFull(reader, buffer)

		if n > 0 {
			chunk := &models.ChunkData{
				Data:       buffer[:n],
				OrderIndex: orderIndex,
				Size:       int64(n),
			}
			if fnErr := fn(chunk); fnErr != nil {
				return totalSize, fnErr
			}
			totalSize += int64(n)
			orderIndex++
		}

		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			return totalSize, fmt.Errorf("error reading chunk: %w", err)
		}
	}

	return totalSize, nil
}

// ComputeHash computes SHA256 hash of data
func ComputeHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ReassembleChunks combines chunks in order
func ReassembleChunks(chunks [][]byte) []byte {
	totalSize := 0
	for _, chunk := range chunks {
		totalSize += len(chunk)
	}

	result := make([]byte, 0, totalSize)
	for _, chunk := range chunks {
		result = append(result, chunk...)
	}

	return result
}
