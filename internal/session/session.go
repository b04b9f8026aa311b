// Package session holds the current authentication state: bearer token and
// user record, persisted in the OS keyring so a login survives restarts.
// Consumers subscribe to be told when the session changes.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"wishdo/backend"
	"wishdo/internal/utils"
)

const (
	service      = "wishdo"
	tokenAccount = "auth_token"
	userAccount  = "auth_user"
)

// Keyring is the interface for keyring operations.
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// Provider exposes the current session and notifies on change.
type Provider struct {
	keyring Keyring

	mu      sync.RWMutex
	token   string
	user    *backend.User
	subs    map[int]func()
	nextSub int
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithKeyring sets a custom keyring implementation.
func WithKeyring(k Keyring) Option {
	return func(p *Provider) {
		p.keyring = k
	}
}

// storedUser is the keyring JSON shape for the user record.
type storedUser struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewProvider creates a session provider and loads any persisted session.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{
		keyring: &systemKeyring{},
		subs:    make(map[int]func()),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.load()
	return p
}

// load restores a persisted session, if any. A missing or unreadable entry
// simply means "logged out".
func (p *Provider) load() {
	token, err := p.keyring.Get(service, tokenAccount)
	if err != nil || token == "" {
		return
	}

	raw, err := p.keyring.Get(service, userAccount)
	if err != nil {
		utils.Debugf("session user record missing, ignoring stored token")
		return
	}

	var stored storedUser
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		utils.Warnf("stored session is corrupt, ignoring: %v", err)
		return
	}

	p.token = token
	p.user = &backend.User{
		ID:        stored.ID,
		Name:      stored.Name,
		Email:     stored.Email,
		CreatedAt: stored.CreatedAt,
		UpdatedAt: stored.UpdatedAt,
	}
}

// Token returns the current bearer token, or "" when logged out.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// User returns the current user record, or nil when logged out.
func (p *Provider) User() *backend.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// UserID returns the current user's identifier, or "" when logged out.
func (p *Provider) UserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.user == nil {
		return ""
	}
	return p.user.ID
}

// Login stores a new session and notifies subscribers.
func (p *Provider) Login(token string, user backend.User) error {
	stored := storedUser{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	if err := p.keyring.Set(service, tokenAccount, token); err != nil {
		return err
	}
	if err := p.keyring.Set(service, userAccount, string(raw)); err != nil {
		return err
	}

	p.mu.Lock()
	p.token = token
	u := user
	p.user = &u
	p.mu.Unlock()

	p.notify()
	return nil
}

// UpdateUser replaces the stored user record, keeping the token.
func (p *Provider) UpdateUser(user backend.User) error {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	return p.Login(token, user)
}

// Logout clears the session and notifies subscribers. Clearing an absent
// session is not an error.
func (p *Provider) Logout() error {
	_ = p.keyring.Delete(service, tokenAccount)
	_ = p.keyring.Delete(service, userAccount)

	p.mu.Lock()
	p.token = ""
	p.user = nil
	p.mu.Unlock()

	p.notify()
	return nil
}

// Subscribe registers a change callback and returns its unsubscribe handle.
func (p *Provider) Subscribe(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// notify invokes all subscribers.
func (p *Provider) notify() {
	p.mu.RLock()
	subs := make([]func(), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}
