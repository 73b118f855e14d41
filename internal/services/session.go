package services

import (
	"sync"

	"promo-kiosk-backend/internal/config"
	"promo-kiosk-backend/internal/models"
)

// SessionStore holds the host session snapshot. Every write publishes a full
// new snapshot to the subscribers.
type SessionStore struct {
	mu      sync.RWMutex
	current models.MboxData
	nextID  int
	subs    map[int]func(models.MboxData)
}

func NewSessionStore(initial models.MboxData) *SessionStore {
	return &SessionStore{
		current: initial,
		subs:    make(map[int]func(models.MboxData)),
	}
}

// InitialSession is the session used until the host sends its own data.
func InitialSession(m config.MboxConfig) models.MboxData {
	return models.MboxData{
		OwnerID:                  m.InitialOwnerID,
		TwoLetterISOLanguageName: m.InitialLanguage,
		CasinoCurrencySymbol:     m.InitialCurrency,
		EgmCode:                  m.InitialEgmCode,
		CasinoID:                 m.InitialCasinoID,
	}
}

// Snapshot returns the current session.
func (s *SessionStore) Snapshot() models.MboxData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the session.
func (s *SessionStore) Set(data models.MboxData) {
	s.mu.Lock()
	s.current = data
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(data)
	}
}

// Update merges an inbound host message over the current session.
func (s *SessionStore) Update(msg models.MboxMessage) models.MboxData {
	s.mu.Lock()
	next := msg.Apply(s.current)
	s.current = next
	subs := s.subscribers()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}

// Subscribe registers fn and calls it right away with the current snapshot.
// The returned func removes the subscription.
func (s *SessionStore) Subscribe(fn func(models.MboxData)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	current := s.current
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *SessionStore) subscribers() []func(models.MboxData) {
	out := make([]func(models.MboxData), 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}
