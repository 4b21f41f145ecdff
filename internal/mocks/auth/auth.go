package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/target/mmk-portal/internal/domain/auth"
	apperrors "github.com/target/mmk-portal/internal/errors"
	"github.com/target/mmk-portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider      = (*MockAuthProvider)(nil)
	_ ports.IdentityProvider  = (*MockIdentityProvider)(nil)
	_ ports.TokenVerifier     = (*StubTokenVerifier)(nil)
	_ ports.KeyValueStore     = (*MemoryKV)(nil)
	_ ports.SessionStorage    = (*MemorySessionStorage)(nil)
	_ ports.ExecutionGuard    = (*MemoryGuard)(nil)
	_ ports.IdentityPublisher = (*RecordingPublisher)(nil)
	_ ports.Navigator         = (*RecordingNavigator)(nil)
	_ ports.Notifier          = (*RecordingNotifier)(nil)
	_ ports.Waiter            = (*RecordingWaiter)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc func(ctx context.Context, in ports.BeginInput) (authURL, state, nonce string, err error)

	// Deterministic values for predictable testing
	AuthURL     string
	StatePrefix string
	NoncePrefix string

	// Client is returned from NewSessionClient when set.
	Client *MockIdentityProvider

	mu        sync.Mutex
	callCount int
	Inputs    []ports.SessionClientInput
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL:     "https://mock-idp/auth",
		StatePrefix: "state",
		NoncePrefix: "nonce",
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, string, string, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.mu.Lock()
	m.callCount++
	n := m.callCount
	m.mu.Unlock()

	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/auth"
	}
	statePrefix := m.StatePrefix
	if statePrefix == "" {
		statePrefix = "state"
	}
	noncePrefix := m.NoncePrefix
	if noncePrefix == "" {
		noncePrefix = "nonce"
	}

	return authURL, fmt.Sprintf("%s-%d", statePrefix, n), fmt.Sprintf("%s-%d", noncePrefix, n), nil
}

func (m *MockAuthProvider) NewSessionClient(in ports.SessionClientInput) ports.IdentityProvider {
	m.mu.Lock()
	m.Inputs = append(m.Inputs, in)
	m.mu.Unlock()
	if m.Client != nil {
		return m.Client
	}
	return NewMockIdentityProvider()
}

// MockIdentityProvider is a configurable identity-provider client that counts calls.
type MockIdentityProvider struct {
	ExchangeFunc   func(ctx context.Context, code string) error
	SetSessionFunc func(ctx context.Context, accessToken, refreshToken string) error
	GetSessionFunc func(ctx context.Context) (*domainauth.ProviderSession, error)

	// Session is returned by GetSession when GetSessionFunc is nil.
	Session *domainauth.ProviderSession

	mu              sync.Mutex
	exchangeCalls   int
	setSessionCalls int
	getSessionCalls int
}

// NewMockIdentityProvider returns a provider holding a session valid for one hour.
func NewMockIdentityProvider() *MockIdentityProvider {
	return &MockIdentityProvider{Session: ValidSession(time.Now())}
}

// ValidSession builds a provider session expiring one hour after now.
func ValidSession(now time.Time) *domainauth.ProviderSession {
	return &domainauth.ProviderSession{
		AccessToken:    "access-token",
		RefreshToken:   "refresh-token",
		ExpiresAt:      now.Add(time.Hour).Unix(),
		ProviderUserID: "idp-user-1",
		ProviderEmail:  "jane.doe@example.com",
		ProviderMetadata: map[string]string{
			"name": "Jane Doe",
		},
	}
}

func (m *MockIdentityProvider) ExchangeCodeForSession(ctx context.Context, code string) error {
	m.mu.Lock()
	m.exchangeCalls++
	m.mu.Unlock()
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code)
	}
	return nil
}

func (m *MockIdentityProvider) SetSession(ctx context.Context, accessToken, refreshToken string) error {
	m.mu.Lock()
	m.setSessionCalls++
	m.mu.Unlock()
	if m.SetSessionFunc != nil {
		return m.SetSessionFunc(ctx, accessToken, refreshToken)
	}
	return nil
}

func (m *MockIdentityProvider) GetSession(ctx context.Context) (*domainauth.ProviderSession, error) {
	m.mu.Lock()
	m.getSessionCalls++
	m.mu.Unlock()
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx)
	}
	if m.Session == nil {
		return nil, nil
	}
	s := *m.Session
	return &s, nil
}

// ExchangeCalls returns the number of code exchanges attempted.
func (m *MockIdentityProvider) ExchangeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exchangeCalls
}

// SetSessionCalls returns the number of token installs attempted.
func (m *MockIdentityProvider) SetSessionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setSessionCalls
}

// GetSessionCalls returns the number of session reads.
func (m *MockIdentityProvider) GetSessionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSessionCalls
}

// StubTokenVerifier answers VerifyToken from a function, or from Identity.
type StubTokenVerifier struct {
	VerifyFunc func(ctx context.Context, accessToken string, attempt int) (domainauth.Identity, error)
	Identity   domainauth.Identity

	mu     sync.Mutex
	calls  int
	tokens []string
}

func (s *StubTokenVerifier) VerifyToken(ctx context.Context, accessToken string) (domainauth.Identity, error) {
	s.mu.Lock()
	s.calls++
	attempt := s.calls
	s.tokens = append(s.tokens, accessToken)
	s.mu.Unlock()

	if s.VerifyFunc != nil {
		return s.VerifyFunc(ctx, accessToken, attempt)
	}
	return s.Identity, nil
}

// Calls returns the number of verification attempts.
func (s *StubTokenVerifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Tokens returns the access tokens seen, in call order.
func (s *StubTokenVerifier) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// ErrKeyNotFound is returned by MemoryKV.Get for missing keys.
var ErrKeyNotFound = apperrors.NotFound("key not found")

// MemoryKV is an in-memory key-value store that records writes.
type MemoryKV struct {
	// SetErr, when set, fails every Set.
	SetErr error
	// GetErr, when set, fails every Get.
	GetErr error

	mu     sync.Mutex
	values map[string]string
	writes []string
}

// NewMemoryKV creates an empty store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{values: make(map[string]string)}
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, key)
	if m.SetErr != nil {
		return m.SetErr
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	v, ok := m.values[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Writes returns every key passed to Set, including failed writes.
func (m *MemoryKV) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// WritesTo counts Set calls for key.
func (m *MemoryKV) WritesTo(key string) int {
	n := 0
	for _, k := range m.Writes() {
		if k == key {
			n++
		}
	}
	return n
}

// MemorySessionStorage hands out one MemoryKV per browser session.
type MemorySessionStorage struct {
	mu     sync.Mutex
	scopes map[string]*MemoryKV
}

// NewMemorySessionStorage creates an empty session storage.
func NewMemorySessionStorage() *MemorySessionStorage {
	return &MemorySessionStorage{scopes: make(map[string]*MemoryKV)}
}

func (m *MemorySessionStorage) Scope(sessionID string) ports.KeyValueStore {
	return m.KV(sessionID)
}

// KV returns the concrete store for sessionID, creating it on first use.
func (m *MemorySessionStorage) KV(sessionID string) *MemoryKV {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scopes == nil {
		m.scopes = make(map[string]*MemoryKV)
	}
	kv, ok := m.scopes[sessionID]
	if !ok {
		kv = NewMemoryKV()
		m.scopes[sessionID] = kv
	}
	return kv
}

func (m *MemorySessionStorage) Destroy(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scopes, sessionID)
	return nil
}

// MemoryGuard is an in-process ExecutionGuard.
type MemoryGuard struct {
	Err error

	mu   sync.Mutex
	keys map[string]bool
}

func (g *MemoryGuard) Acquire(_ context.Context, key string) (bool, error) {
	if g.Err != nil {
		return false, g.Err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.keys == nil {
		g.keys = make(map[string]bool)
	}
	if g.keys[key] {
		return false, nil
	}
	g.keys[key] = true
	return true, nil
}

// RecordingPublisher captures published identities.
type RecordingPublisher struct {
	mu        sync.Mutex
	published []domainauth.Identity
}

func (p *RecordingPublisher) Publish(identity domainauth.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, identity)
}

// Published returns every identity published so far.
func (p *RecordingPublisher) Published() []domainauth.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domainauth.Identity(nil), p.published...)
}

// RecordingNavigator captures Replace calls.
type RecordingNavigator struct {
	Err error

	mu    sync.Mutex
	paths []string
}

func (n *RecordingNavigator) Replace(_ context.Context, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	return n.Err
}

// Paths returns every path navigated to.
func (n *RecordingNavigator) Paths() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// RecordingNotifier captures notices.
type RecordingNotifier struct {
	mu      sync.Mutex
	notices []ports.Notice
}

func (n *RecordingNotifier) Notify(_ context.Context, notice ports.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

// Notices returns every notice shown.
func (n *RecordingNotifier) Notices() []ports.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]ports.Notice(nil), n.notices...)
}

// RecordingWaiter records requested delays and returns immediately unless Block is set.
type RecordingWaiter struct {
	// Block makes Wait wait for ctx instead of returning at once.
	Block bool

	mu     sync.Mutex
	delays []time.Duration
}

func (w *RecordingWaiter) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	if w.Block {
		<-ctx.Done()
		return ctx.Err()
	}
	return ctx.Err()
}

// Delays returns every requested delay.
func (w *RecordingWaiter) Delays() []time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]time.Duration(nil), w.delays...)
}
