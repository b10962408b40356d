package task

import (
	"errors"
	"image"
	"sync"
)

var ErrSurfaceOwnership = errors.New("surface ownership violation")

type Owner int32

const (
	OwnerStore Owner = iota
	OwnerWorker
	OwnerReturned
)

func (o Owner) String() string {
	switch o {
	case OwnerStore:
		return "store"
	case OwnerWorker:
		return "worker"
	case OwnerReturned:
		return "returned"
	default:
		return "unknown"
	}
}

// Surface is the render target owned by a task. Ownership moves
// store -> worker -> returned and never goes back.
type Surface struct {
	mu    sync.RWMutex
	owner Owner
	img   *image.NRGBA
}

func NewSurface() *Surface {
	return &Surface{owner: OwnerStore}
}

func (s *Surface) Owner() Owner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owner
}

// Transfer hands the surface to the worker. It succeeds at most once.
func (s *Surface) Transfer() (*Canvas, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != OwnerStore {
		return nil, ErrSurfaceOwnership
	}
	s.owner = OwnerWorker
	return &Canvas{s: s}, nil
}

// Reclaim takes the surface back after the worker's terminal message.
func (s *Surface) Reclaim() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner != OwnerWorker {
		return ErrSurfaceOwnership
	}
	s.owner = OwnerReturned
	return nil
}

// Image returns the drawn image. Only a returned surface may be read; the
// second result is false when the worker never drew into it.
func (s *Surface) Image() (*image.NRGBA, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.owner != OwnerReturned {
		return nil, false, ErrSurfaceOwnership
	}
	return s.img, s.img != nil, nil
}

// Canvas is the worker's write handle on a transferred Surface.
type Canvas struct {
	s *Surface
}

func (c *Canvas) Draw(img *image.NRGBA) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	if c.s.owner != OwnerWorker {
		return ErrSurfaceOwnership
	}
	c.s.img = img
	return nil
}
