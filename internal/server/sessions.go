package server

import (
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"go.uber.org/zap"
)

// DefaultSessionIdleTimeout bounds how long an untouched editor session is kept.
const DefaultSessionIdleTimeout = 2 * time.Hour

var (
	errSessionNotFound = errors.New("editor session not found")
	errRegistryClosed  = errors.New("editor sessions are shutting down")
)

// SessionRegistryConfig carries the collaborators handed to every editor session.
type SessionRegistryConfig struct {
	Gateway    content.Gateway
	IDProvider content.IDProvider
	Clock      func() time.Time
	Logger     *zap.Logger
	// IdleTimeout drops sessions not looked up for this long. Zero means
	// DefaultSessionIdleTimeout.
	IdleTimeout time.Duration
}

// sessionObserver receives the asynchronous outcomes of a session's saves.
type sessionObserver interface {
	sessionSaved(entry *editorSession, document content.Document)
	snapshotFailed(entry *editorSession, failure *content.SnapshotError)
}

type editorSession struct {
	id       string
	subject  string
	session  *content.Session
	lastUsed time.Time
}

// SessionRegistry keeps the open editor sessions of the admin UI, keyed by id.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*editorSession
	config   SessionRegistryConfig
	observer sessionObserver
	closed   bool
	closing  sync.WaitGroup
}

func NewSessionRegistry(cfg SessionRegistryConfig) *SessionRegistry {
	if cfg.IDProvider == nil {
		cfg.IDProvider = content.NewUUIDProvider()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultSessionIdleTimeout
	}
	return &SessionRegistry{
		sessions: make(map[string]*editorSession),
		config:   cfg,
	}
}

func (r *SessionRegistry) observe(observer sessionObserver) {
	r.mu.Lock()
	r.observer = observer
	r.mu.Unlock()
}

// Open creates an idle session owned by subject. Expired sessions are swept
// first.
func (r *SessionRegistry) Open(subject string) (*editorSession, error) {
	sessionID, err := r.config.IDProvider.NewID()
	if err != nil {
		return nil, err
	}
	entry := &editorSession{id: sessionID, subject: subject}
	session, err := content.NewSession(content.SessionConfig{
		Gateway:    r.config.Gateway,
		IDProvider: r.config.IDProvider,
		Clock:      r.config.Clock,
		Logger:     r.config.Logger,
		OnSaved: func(document content.Document) {
			if observer := r.currentObserver(); observer != nil {
				observer.sessionSaved(entry, document)
			}
		},
		OnSnapshotFailed: func(failure *content.SnapshotError) {
			if observer := r.currentObserver(); observer != nil {
				observer.snapshotFailed(entry, failure)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	entry.session = session

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errRegistryClosed
	}
	now := r.config.Clock()
	r.sweepLocked(now)
	entry.lastUsed = now
	r.sessions[sessionID] = entry
	return entry, nil
}

// Get returns the session and marks it used. Sessions idle past the timeout
// are reported as missing.
func (r *SessionRegistry) Get(sessionID string) (*editorSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return nil, errSessionNotFound
	}
	now := r.config.Clock()
	if r.expired(entry, now) {
		r.dropLocked(entry, "idle_timeout")
		return nil, errSessionNotFound
	}
	entry.lastUsed = now
	return entry, nil
}

// Close forgets the session. Saves and snapshot appends it already started
// keep running; later saves on it fail.
func (r *SessionRegistry) Close(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sessionID]
	if !ok {
		return errSessionNotFound
	}
	r.dropLocked(entry, "closed")
	return nil
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// WaitForSnapshots blocks until the snapshot appends of every open and
// closed session have settled. Callers must not save concurrently; Shutdown
// is the variant that also stops new saves.
func (r *SessionRegistry) WaitForSnapshots() {
	for _, entry := range r.openSessions() {
		entry.session.WaitForSnapshots()
	}
	r.closing.Wait()
}

// Shutdown refuses new sessions, closes the open ones and waits for their
// in-flight saves and snapshot appends.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	for _, entry := range r.sessions {
		r.dropLocked(entry, "shutdown")
	}
	r.mu.Unlock()
	r.closing.Wait()
}

func (r *SessionRegistry) openSessions() []*editorSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	open := make([]*editorSession, 0, len(r.sessions))
	for _, entry := range r.sessions {
		open = append(open, entry)
	}
	return open
}

func (r *SessionRegistry) expired(entry *editorSession, now time.Time) bool {
	return now.Sub(entry.lastUsed) > r.config.IdleTimeout
}

func (r *SessionRegistry) sweepLocked(now time.Time) {
	for _, entry := range r.sessions {
		if r.expired(entry, now) {
			r.dropLocked(entry, "idle_timeout")
		}
	}
}

// dropLocked removes entry and closes its session in the background.
// r.closing.Add runs under r.mu while Shutdown waits only after setting closed.
func (r *SessionRegistry) dropLocked(entry *editorSession, reason string) {
	delete(r.sessions, entry.id)
	r.config.Logger.Debug("editor session dropped",
		zap.String("session_id", entry.id),
		zap.String("reason", reason))
	r.closing.Add(1)
	go func() {
		defer r.closing.Done()
		entry.session.Close()
	}()
}

func (r *SessionRegistry) currentObserver() sessionObserver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.observer
}
