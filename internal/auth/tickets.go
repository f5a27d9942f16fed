package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultTicketTTL is how long a WebSocket ticket stays redeemable.
	DefaultTicketTTL = 60 * time.Second

	ticketBytes = 32
)

// TicketStore issues single-use, short-lived tickets bound to a caller.
// Browsers cannot set headers on a WebSocket upgrade, so a client trades
// its bearer token for a ticket and passes that in the query string.
type TicketStore struct {
	mu      sync.Mutex
	tickets map[string]ticketEntry
	ttl     time.Duration
	now     func() time.Time
}

type ticketEntry struct {
	subject   Subject
	expiresAt time.Time
}

// NewTicketStore creates a store whose tickets expire after ttl.
func NewTicketStore(ttl time.Duration) *TicketStore {
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &TicketStore{
		tickets: make(map[string]ticketEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Issue creates a ticket for subject.
func (s *TicketStore) Issue(subject Subject) (string, time.Duration, error) {
	b := make([]byte, ticketBytes)
	if _, err := rand.Read(b); err != nil {
		return "", 0, fmt.Errorf("generating ticket: %w", err)
	}
	ticket := hex.EncodeToString(b)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for t, e := range s.tickets {
		if now.After(e.expiresAt) {
			delete(s.tickets, t)
		}
	}
	s.tickets[ticket] = ticketEntry{subject: subject, expiresAt: now.Add(s.ttl)}
	return ticket, s.ttl, nil
}

// Redeem consumes a ticket and returns the subject it was issued to.
func (s *TicketStore) Redeem(ticket string) (Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tickets[ticket]
	if !ok {
		return Subject{}, ErrTicketInvalid
	}
	delete(s.tickets, ticket)

	if s.now().After(entry.expiresAt) {
		return Subject{}, ErrTicketInvalid
	}
	return entry.subject, nil
}
