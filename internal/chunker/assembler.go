package chunker

import "github.com/maneesh/fileingest/internal/models"

// Assembler folds the messages of one upload stream into a payload.
// It is not safe for concurrent use; each stream owns its own Assembler.
type Assembler struct {
	filename string
	mimetype string
	parts    [][]byte
	size     int64
}

// NewAssembler returns an empty accumulator
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Add applies one message. Control values are last-seen-wins and data
// slices are appended in receipt order. The slice is retained, not copied.
func (a *Assembler) Add(msg *models.UploadChunk) {
	if msg == nil {
		return
	}
	if msg.IsControl() {
		a.filename = msg.Filename
		a.mimetype = msg.Mimetype
	}
	if msg.IsData() {
		a.parts = append(a.parts, msg.FileChunk)
		a.size += int64(len(msg.FileChunk))
	}
}

// Filename returns the most recently seen filename
func (a *Assembler) Filename() string { return a.filename }

// Mimetype returns the most recently seen mimetype
func (a *Assembler) Mimetype() string { return a.mimetype }

// ChunkCount returns the number of data-bearing messages seen
func (a *Assembler) ChunkCount() int { return len(a.parts) }

// Size returns the accumulated payload length
func (a *Assembler) Size() int64 { return a.size }

// Empty reports whether no data-bearing message was seen
func (a *Assembler) Empty() bool { return len(a.parts) == 0 }

// Payload concatenates every data slice into one contiguous buffer
func (a *Assembler) Payload() []byte {
	return ReassembleChunks(a.parts)
}

// Reset drops the buffered parts so they can be collected
func (a *Assembler) Reset() {
	a.parts = nil
	a.size = 0
}
