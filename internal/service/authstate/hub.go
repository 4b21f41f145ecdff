// Package authstate holds the signed-in identity of every browser session in
// process memory. Writes go through a per-session writer; reads are open to all.
package authstate

import (
	"sync"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	"github.com/target/mmk-portal/internal/ports"
)

// Event describes a change to one session's identity.
type Event struct {
	SessionID string
	Identity  domainauth.Identity
	// Cleared is set when the session signed out.
	Cleared bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithTTL bounds how long an entry is served after it was last written.
// Zero keeps entries until they are forgotten.
func WithTTL(ttl time.Duration) Option {
	return func(h *Hub) { h.ttl = ttl }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

type entry struct {
	identity  domainauth.Identity
	expiresAt time.Time
}

// Hub is the in-memory auth state container.
type Hub struct {
	mu         sync.RWMutex
	identities map[string]entry
	ttl        time.Duration
	now        func() time.Time

	subMu  sync.RWMutex
	subs   map[int]func(Event)
	nextID int
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		identities: make(map[string]entry),
		subs:       make(map[int]func(Event)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) newEntry(identity domainauth.Identity) entry {
	e := entry{identity: identity}
	if h.ttl > 0 {
		e.expiresAt = h.now().Add(h.ttl)
	}
	return e
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Writer returns the publisher for sessionID.
func (h *Hub) Writer(sessionID string) ports.IdentityPublisher {
	return sessionWriter{hub: h, sessionID: sessionID}
}

type sessionWriter struct {
	hub       *Hub
	sessionID string
}

func (w sessionWriter) Publish(identity domainauth.Identity) {
	w.hub.set(w.sessionID, identity)
}

// Lookup returns the identity published for sessionID. Expired entries are not returned.
func (h *Hub) Lookup(sessionID string) (domainauth.Identity, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.identities[sessionID]
	if !ok || e.expired(h.now()) {
		return domainauth.Identity{}, false
	}
	return e.identity, true
}

// Restore seeds the hub from persisted storage without notifying subscribers.
// It also renews the entry's expiry.
func (h *Hub) Restore(sessionID string, identity domainauth.Identity) {
	h.mu.Lock()
	h.identities[sessionID] = h.newEntry(identity)
	h.mu.Unlock()
}

// Forget drops sessionID and notifies subscribers when it was present.
func (h *Hub) Forget(sessionID string) {
	h.mu.Lock()
	e, ok := h.identities[sessionID]
	delete(h.identities, sessionID)
	h.mu.Unlock()

	if ok {
		h.notify(Event{SessionID: sessionID, Identity: e.identity, Cleared: true})
	}
}

// Sweep drops expired entries, notifying subscribers for each, and returns how many went.
func (h *Hub) Sweep() int {
	now := h.now()
	var gone []Event

	h.mu.Lock()
	for sid, e := range h.identities {
		if e.expired(now) {
			delete(h.identities, sid)
			gone = append(gone, Event{SessionID: sid, Identity: e.identity, Cleared: true})
		}
	}
	h.mu.Unlock()

	for _, ev := range gone {
		h.notify(ev)
	}
	return len(gone)
}

// Len returns the number of live signed-in sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	now := h.now()
	n := 0
	for _, e := range h.identities {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Subscribe registers fn for every change and returns a function that removes it.
// fn runs synchronously on the writer's goroutine and must not call back into Subscribe.
func (h *Hub) Subscribe(fn func(Event)) func() {
	h.subMu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.subMu.Unlock()

	return func() {
		h.subMu.Lock()
		delete(h.subs, id)
		h.subMu.Unlock()
	}
}

func (h *Hub) set(sessionID string, identity domainauth.Identity) {
	h.mu.Lock()
	h.identities[sessionID] = h.newEntry(identity)
	h.mu.Unlock()

	h.notify(Event{SessionID: sessionID, Identity: identity})
}

func (h *Hub) notify(ev Event) {
	h.subMu.RLock()
	fns := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.subMu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
