package models

import "time"

// FileMetadata represents one ingested file as stored in the metadata index
type FileMetadata struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Mimetype   string    `json:"mimetype"`
	Size       int64     `json:"size"`
	UploadDate time.Time `json:"uploadDate"`
	FileURL    string    `json:"fileUrl"`
}

// UploadChunk is one message of an upload stream. A message with a filename
// carries control values, a message with FileChunk carries payload bytes.
type UploadChunk struct {
	Filename  string `json:"filename,omitempty"`
	Mimetype  string `json:"mimetype,omitempty"`
	FileChunk []byte `json:"fileChunk,omitempty"`
}

// IsControl reports whether the message sets filename/mimetype
func (c *UploadChunk) IsControl() bool {
	return c.Filename != ""
}

// IsData reports whether the message carries payload bytes
func (c *UploadChunk) IsData() bool {
	return len(c.FileChunk) > 0
}

// UploadResult is the terminal reply of an upload stream
type UploadResult struct {
	Message string `json:"message"`
	FileURL string `json:"fileUrl"`
}

// SaveMetadataRequest asks the metadata service to commit one record
type SaveMetadataRequest struct {
	Filename string `json:"filename"`
	Mimetype string `json:"mimetype"`
	Size     int64  `json:"size"`
	FileURL  string `json:"fileUrl"`
}

// SaveMetadataReply carries the generated record id
type SaveMetadataReply struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// GetAllFilesRequest is empty; listing has no filter or pagination
type GetAllFilesRequest struct{}

// GetAllFilesReply carries every stored record
type GetAllFilesReply struct {
	Files []*FileMetadata `json:"files"`
}

// ChunkData holds one slice of a payload while it is being split for transfer
type ChunkData struct {
	Data       []byte
	OrderIndex int
	Size       int64
}

// BlobObject describes an object listed from the blob store
type BlobObject struct {
	Key          string
	Size         int64
	LastModified time.Time
	URL          string
}
