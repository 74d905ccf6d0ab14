package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
)

// TypeSnackbar is the only presentation the browser uses: a transient toast.
const TypeSnackbar = "snackbar"

type Notice struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives user-visible notices. Notify returns the notice id.
type Sink interface {
	Notify(status Status, message string) string
	Dismiss(id string)
}

// Store keeps notices in memory, oldest first. Subscribers registered with
// Subscribe receive every new notice.
type Store struct {
	mu      sync.Mutex
	notices []Notice
	limit   int
	subs    []chan Notice
	now     func() time.Time
}

// NewStore creates a Store that keeps at most limit notices; limit <= 0 keeps
// them all.
func NewStore(limit int) *Store {
	return &Store{limit: limit, now: time.Now}
}

func (s *Store) Notify(status Status, message string) string {
	n := Notice{
		ID:        uuid.NewString(),
		Status:    status,
		Message:   message,
		Type:      TypeSnackbar,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.notices = append(s.notices, n)
	if s.limit > 0 && len(s.notices) > s.limit {
		s.notices = append([]Notice(nil), s.notices[len(s.notices)-s.limit:]...)
	}
	subs := append([]chan Notice(nil), s.subs...)
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- n:
		default:
		}
	}
	return n.ID
}

func (s *Store) Dismiss(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.notices {
		if n.ID == id {
			s.notices = append(s.notices[:i], s.notices[i+1:]...)
			return
		}
	}
}

// List returns a copy of the pending notices.
func (s *Store) List() []Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notice(nil), s.notices...)
}

// Subscribe returns a buffered channel of new notices. Slow subscribers miss
// notices rather than block Notify.
func (s *Store) Subscribe(buffer int) <-chan Notice {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Notice, buffer)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Notify(Status, string) string { return "" }
func (Discard) Dismiss(string)               {}
