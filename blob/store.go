// Package blob keeps uploaded image bytes for the lifetime of the process and
// hands out opaque "blob:" locators for them, the way a browser hands out
// object URLs for dropped files.
package blob

import (
	"errors"
	"strings"
	"sync"

	"github.com/segmentio/ksuid"
)

const Scheme = "blob:"

var ErrNotFound = errors.New("blob not found")

type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

type Store struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewStore() *Store {
	return &Store{objects: make(map[string]Object)}
}

// Put stores obj and returns its locator. Objects are never evicted.
func (s *Store) Put(obj Object) string {
	locator := Scheme + ksuid.New().String()

	s.mu.Lock()
	s.objects[locator] = obj
	s.mu.Unlock()

	return locator
}

func (s *Store) Get(locator string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[locator]
	if !ok {
		return Object{}, ErrNotFound
	}
	return obj, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// IsLocator reports whether source refers to a stored object rather than a URL.
func IsLocator(source string) bool {
	return strings.HasPrefix(source, Scheme)
}
