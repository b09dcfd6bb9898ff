package ingest

import (
	"sync"
	"time"

	"github.com/feichai0017/document-ingest/internal/models"
)

type EventType string

const (
	EventItemUpdated EventType = "item"
	EventItemRemoved EventType = "removed"
	EventNavigate    EventType = "navigate"
)

// Event is published to subscribers after every visible change.
type Event struct {
	Type     EventType          `json:"type"`
	Item     *models.UploadItem `json:"item,omitempty"`
	ItemID   string             `json:"itemId,omitempty"`
	RemoteID string             `json:"remoteId,omitempty"`
}

// store is the ordered set of tracked items. Entries are replaced in place
// under their id and handed out only as copies.
type store struct {
	mu    sync.RWMutex
	order []string
	items map[string]*models.UploadItem

	subs    map[int]chan Event
	nextSub int
	closed  bool

	now func() time.Time
}

func newStore() *store {
	return &store{
		items: make(map[string]*models.UploadItem),
		subs:  make(map[int]chan Event),
		now:   time.Now,
	}
}

func (s *store) add(item models.UploadItem) models.UploadItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.items[item.ID] = &item
	s.order = append(s.order, item.ID)
	return item
}

// update applies fn to the item and returns the new snapshot when fn
// reports a change.
func (s *store) update(id string, fn func(*models.UploadItem) bool) (models.UploadItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[id]
	if !ok {
		return models.UploadItem{}, false
	}
	next := *current
	if !fn(&next) {
		return models.UploadItem{}, false
	}
	next.UpdatedAt = s.now()
	s.items[id] = &next
	return next, true
}

func (s *store) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *store) get(id string) (models.UploadItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return models.UploadItem{}, false
	}
	return *item, true
}

func (s *store) snapshot() []models.UploadItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.UploadItem, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.items[id])
	}
	return out
}

func (s *store) subscribe(buffer int) (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, buffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// publish never blocks; a subscriber that falls behind misses events and
// should resynchronise from a snapshot.
func (s *store) publish(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *store) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
