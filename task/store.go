package task

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Update is a partial change applied atomically by Store.Update.
type Update struct {
	Status Status
	Result *Result
	Err    *Error
}

// Event tells subscribers that a task changed; they re-read the store for details.
type Event struct {
	ID     int
	Status Status
}

type Store struct {
	mu     sync.RWMutex
	tasks  []*Task
	subs   map[int]chan Event
	nextID int
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(logger *zap.Logger) *Store {
	return &Store{
		subs:   make(map[int]chan Event),
		logger: logger,
		now:    time.Now,
	}
}

// Allocate appends a pending task and returns its id, which equals the
// store length before the append.
func (s *Store) Allocate(source, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	t := &Task{
		ID:        len(s.tasks),
		Source:    source,
		Name:      name,
		Status:    StatusPending,
		Surface:   NewSurface(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks = append(s.tasks, t)
	s.publishLocked(Event{ID: t.ID, Status: t.Status})
	return t.ID
}

func (s *Store) Update(id int, u Update) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookupLocked(id)
	if err != nil {
		return Task{}, err
	}

	if !t.Status.CanTransition(u.Status) {
		return t.clone(), fmt.Errorf("%w: task %d %s -> %s", ErrInvalidTransition, id, t.Status, u.Status)
	}

	switch u.Status {
	case StatusComplete:
		if u.Result == nil {
			return t.clone(), fmt.Errorf("%w: task %d complete without result", ErrInvalidTransition, id)
		}
		r := *u.Result
		t.Result, t.Err = &r, nil
	case StatusError:
		if u.Err == nil {
			return t.clone(), fmt.Errorf("%w: task %d error without detail", ErrInvalidTransition, id)
		}
		e := *u.Err
		t.Result, t.Err = nil, &e
	}

	t.Status = u.Status
	t.UpdatedAt = s.now()
	s.publishLocked(Event{ID: id, Status: t.Status})
	return t.clone(), nil
}

func (s *Store) Get(id int) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookupLocked(id)
	if err != nil {
		return Task{}, err
	}
	return t.clone(), nil
}

// All returns snapshots of every task in id order.
func (s *Store) All() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Task, len(s.tasks))
	for i, t := range s.tasks {
		result[i] = t.clone()
	}
	return result
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// Summary counts tasks per status.
func (s *Store) Summary() map[Status]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[Status]int{
		StatusPending:    0,
		StatusDispatched: 0,
		StatusProcessing: 0,
		StatusComplete:   0,
		StatusError:      0,
	}
	for _, t := range s.tasks {
		counts[t.Status]++
	}
	return counts
}

// Subscribe registers a listener for task events. Events that do not fit in
// the buffer are dropped; call the returned func to unsubscribe.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event, buffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) lookupLocked(id int) (*Task, error) {
	if id < 0 || id >= len(s.tasks) {
		return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return s.tasks[id], nil
}

// publishLocked must be called with mu held.
func (s *Store) publishLocked(evt Event) {
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			s.logger.Warn("subscriber too slow, dropped task event",
				zap.Int("task_id", evt.ID),
				zap.String("status", evt.Status.String()),
			)
		}
	}
}
