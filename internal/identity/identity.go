// Package identity holds the shopper's authentication state as seen by the
// cart engine.
package identity

import (
	"fmt"
	"sync"

	"github.com/Skotchmaster/cartsync/pkg/tokens"
)

type Provider interface {
	IsLoggedIn() bool
	Token() string
	UserID() string
	// Logout drops the credential. Called when the cart service rejects it.
	Logout()
	// Subscribe delivers the logged-in flag on every change until cancel is called.
	Subscribe() (<-chan bool, func())
}

// State is a Provider backed by a bearer JWT.
type State struct {
	mu     sync.RWMutex
	token  string
	userID string
	subs   map[int]chan bool
	nextID int
}

func NewState() *State {
	return &State{subs: make(map[int]chan bool)}
}

// Login stores token and takes the user id from its subject claim.
func (s *State) Login(token string) error {
	claims, err := tokens.UnverifiedClaims(token)
	if err != nil {
		return fmt.Errorf("parse bearer token: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.userID = claims.Subject
	s.notifyLocked(true)
	s.mu.Unlock()
	return nil
}

func (s *State) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return
	}
	s.token = ""
	s.userID = ""
	s.notifyLocked(false)
}

func (s *State) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}

func (s *State) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *State) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *State) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan bool, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// notifyLocked replaces any undelivered value so a slow reader sees the latest state.
func (s *State) notifyLocked(loggedIn bool) {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- loggedIn
	}
}

func (s *State) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
