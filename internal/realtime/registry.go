package realtime

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
)

var ErrUserConnectionLimit = errors.New("user connection limit reached")

// Registry indexes this process's live sockets by user id. A user with no
// sockets has no key. Lookups are per user; the only whole-table walk is
// CloseAll at shutdown.
type Registry struct {
	mu         sync.RWMutex
	log        *logger.Logger
	metrics    *observability.Metrics
	maxPerUser int
	conns      map[string][]Conn
	sockets    int
}

// NewRegistry builds an empty registry. maxPerUser <= 0 means unlimited.
func NewRegistry(log *logger.Logger, metrics *observability.Metrics, maxPerUser int) *Registry {
	return &Registry{
		log:        log.With("component", "ConnectionRegistry"),
		metrics:    metrics,
		maxPerUser: maxPerUser,
		conns:      make(map[string][]Conn),
	}
}

func (r *Registry) Connect(userID string, c Conn) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("connect: empty user id")
	}
	if c == nil {
		return fmt.Errorf("connect: nil connection")
	}

	r.mu.Lock()
	set := r.conns[userID]
	if r.maxPerUser > 0 && len(set) >= r.maxPerUser {
		r.mu.Unlock()
		return fmt.Errorf("%w (%d)", ErrUserConnectionLimit, r.maxPerUser)
	}
	for _, existing := range set {
		if existing == c {
			r.mu.Unlock()
			return nil
		}
	}
	r.conns[userID] = append(set, c)
	r.sockets++
	sockets, users, perUser := r.sockets, len(r.conns), len(set)+1
	r.mu.Unlock()

	r.metrics.SetConnections(sockets, users)
	r.log.Debug("connection registered", "user_id", userID, "conn_id", c.ID(), "user_connections", perUser)
	return nil
}

// Disconnect is a no-op when c is not registered under userID.
func (r *Registry) Disconnect(userID string, c Conn) {
	userID = strings.TrimSpace(userID)

	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	idx := -1
	for i, existing := range set {
		if existing == c {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	next := make([]Conn, 0, len(set)-1)
	next = append(next, set[:idx]...)
	next = append(next, set[idx+1:]...)
	if len(next) == 0 {
		delete(r.conns, userID)
	} else {
		r.conns[userID] = next
	}
	r.sockets--
	sockets, users := r.sockets, len(r.conns)
	r.mu.Unlock()

	r.metrics.SetConnections(sockets, users)
	r.log.Debug("connection unregistered", "user_id", userID, "conn_id", c.ID(), "user_connections", len(next))
}

// SnapshotFor returns a copy of the user's sockets in connect order.
func (r *Registry) SnapshotFor(userID string) []Conn {
	userID = strings.TrimSpace(userID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]Conn, len(set))
	copy(out, set)
	return out
}

func (r *Registry) Count(userID string) int {
	userID = strings.TrimSpace(userID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID])
}

func (r *Registry) Stats() (sockets, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sockets, len(r.conns)
}

// CloseAll empties the registry and closes every socket with code. Used on
// process shutdown.
func (r *Registry) CloseAll(code int, reason string) int {
	r.mu.Lock()
	all := r.conns
	r.conns = make(map[string][]Conn)
	r.sockets = 0
	r.mu.Unlock()

	closed := 0
	for userID, set := range all {
		for _, c := range set {
			if err := c.Close(code, reason); err != nil {
				r.log.Debug("close on shutdown failed", "user_id", userID, "conn_id", c.ID(), "error", err)
			}
			closed++
		}
	}
	r.metrics.SetConnections(0, 0)
	if closed > 0 {
		r.log.Info("closed local connections", "count", closed)
	}
	return closed
}
