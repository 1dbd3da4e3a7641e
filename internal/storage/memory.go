package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/maneesh/fileingest/internal/models"
)

type memoryObject struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// MemoryBlobStore keeps objects in process memory. It backs BLOB_BACKEND=memory
// for local runs and the pipeline tests.
type MemoryBlobStore struct {
	mu         sync.RWMutex
	objects    map[string]memoryObject
	publicBase string
	bucketName string
	now        func() time.Time
}

// NewMemoryBlobStore creates an empty in-memory store
func NewMemoryBlobStore(publicBase, bucketName string) *MemoryBlobStore {
	if publicBase == "" {
		publicBase = "memory://local"
	}
	return &MemoryBlobStore{
		objects:    make(map[string]memoryObject),
		publicBase: publicBase,
		bucketName: bucketName,
		now:        time.Now,
	}
}

// PutObject stores a copy of r's bytes under key
func (m *MemoryBlobStore) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read object body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return "", fmt.Errorf("object %s: read %d bytes, expected %d", key, len(data), size)
	}

	m.mu.Lock()
	m.objects[key] = memoryObject{data: data, contentType: contentType, lastModified: m.now()}
	m.mu.Unlock()

	return m.PublicURL(key), nil
}

// PublicURL returns the address an object key is served under
func (m *MemoryBlobStore) PublicURL(key string) string {
	return PublicURL(m.publicBase, m.bucketName, key)
}

// GetObject returns the stored bytes and content type
func (m *MemoryBlobStore) GetObject(_ context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	return obj.data, obj.contentType, nil
}

// ListObjects lists every object under prefix ordered by key
func (m *MemoryBlobStore) ListObjects(ctx context.Context, prefix string) ([]models.BlobObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []models.BlobObject
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, models.BlobObject{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
			URL:          m.PublicURL(key),
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// RemoveObject deletes key; removing a missing key is a no-op
func (m *MemoryBlobStore) RemoveObject(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored objects
func (m *MemoryBlobStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// IsReady always succeeds
func (m *MemoryBlobStore) IsReady(context.Context) error {
	return nil
}
