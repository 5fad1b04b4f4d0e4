// Package objectstore uploads chat attachments and hands back public URLs.
package objectstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/PabloGalante/chicha/internal/domain"
)

type object struct {
	contentType string
	data        []byte
}

// Memory keeps objects in process. URLs point at baseURL, which the HTTP
// adapter serves from Open.
type Memory struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory(baseURL string) *Memory {
	return &Memory{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]object),
	}
}

func (m *Memory) Upload(_ context.Context, path, contentType string, data []byte) (string, error) {
	path = strings.TrimLeft(path, "/")
	if path == "" {
		return "", fmt.Errorf("upload: empty object path")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[path]; exists {
		return "", fmt.Errorf("upload %s: object already exists", path)
	}
	m.objects[path] = object{contentType: contentType, data: append([]byte(nil), data...)}

	return m.baseURL + "/" + escapePath(path), nil
}

// Open returns a stored object.
func (m *Memory) Open(path string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[strings.TrimLeft(path, "/")]
	if !ok {
		return nil, "", fmt.Errorf("object %s: %w", path, domain.ErrNotFound)
	}
	return obj.data, obj.contentType, nil
}
