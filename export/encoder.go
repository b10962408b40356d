// Package export encodes finished results into downloadable PNG files.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"github.com/chaos-io/removebg/task"
)

var ErrNotComplete = errors.New("task is not complete")

// Encoder 结果图只编码一次，之后直接返回缓存的字节
type Encoder struct {
	store *task.Store
	group singleflight.Group

	mu    sync.RWMutex
	cache map[int][]byte
}

func NewEncoder(store *task.Store) *Encoder {
	return &Encoder{store: store, cache: make(map[int][]byte)}
}

// Encode returns the PNG bytes of a complete task. Concurrent calls for the
// same id share one encoding; later calls return the cached bytes.
func (e *Encoder) Encode(id int) ([]byte, error) {
	e.mu.RLock()
	data, ok := e.cache[id]
	e.mu.RUnlock()
	if ok {
		return data, nil
	}

	v, err, _ := e.group.Do(strconv.Itoa(id), func() (interface{}, error) {
		e.mu.RLock()
		cached, ok := e.cache[id]
		e.mu.RUnlock()
		if ok {
			return cached, nil
		}

		encoded, err := e.encode(id)
		if err != nil {
			return nil, err
		}

		e.mu.Lock()
		e.cache[id] = encoded
		e.mu.Unlock()
		return encoded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (e *Encoder) encode(id int) ([]byte, error) {
	t, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if t.Status != task.StatusComplete {
		return nil, fmt.Errorf("%w: task %d is %s", ErrNotComplete, id, t.Status)
	}

	img, drawn, err := t.Surface.Image()
	if err != nil {
		return nil, fmt.Errorf("read surface of task %d: %w", id, err)
	}
	if !drawn {
		return nil, fmt.Errorf("%w: task %d has no image", ErrNotComplete, id)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode task %d: %w", id, err)
	}
	return buf.Bytes(), nil
}

// Cached reports how many results have been encoded.
func (e *Encoder) Cached() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// FileName 下载文件名：removebg-<name>，补 .png 后缀；没有名字就是 removebg.png
func FileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "removebg.png"
	}
	name = strings.ReplaceAll(name, "/", "_")
	if !strings.HasSuffix(strings.ToLower(name), ".png") {
		name += ".png"
	}
	return "removebg-" + name
}
