// Package ws holds the live-connection registry and the websocket
// endpoint feeding it.
package ws

import (
	"sync"
	"time"

	"finance_notification_service/internal/domain/delivery"
	"finance_notification_service/internal/domain/notification"

	"github.com/sirupsen/logrus"
)

// Conn is the slice of a websocket connection the registry needs.
// *websocket.Conn satisfies it directly; tests use in-memory fakes.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Registry tracks live connections per owner. It holds non-owning
// references: the accepting handler owns the transport lifecycle, the
// registry only adds on connect and removes on disconnect or first
// failed send.
//
// Locking is a single RWMutex over the owner map; sends run against a
// snapshot taken under the read lock so slow clients never hold it.
// At very large owner counts this one lock becomes the scaling limit
// and would need to shard per owner.
type Registry struct {
	mu          sync.RWMutex
	connections map[int64]map[Conn]struct{}
	sendTimeout time.Duration
	logger      *logrus.Logger
	closed      bool
}

func NewRegistry(sendTimeout time.Duration, logger *logrus.Logger) *Registry {
	return &Registry{
		connections: make(map[int64]map[Conn]struct{}),
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Register adds a connection to the owner's set. Registering the same
// handle twice is a no-op.
func (r *Registry) Register(ownerID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	set, ok := r.connections[ownerID]
	if !ok {
		set = make(map[Conn]struct{})
		r.connections[ownerID] = set
	}
	set[conn] = struct{}{}
}

// Unregister removes a connection; absent handles are a no-op.
func (r *Registry) Unregister(ownerID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(ownerID, conn)
}

func (r *Registry) removeLocked(ownerID int64, conn Conn) {
	set, ok := r.connections[ownerID]
	if !ok {
		return
	}
	if _, ok := set[conn]; !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.connections, ownerID)
	}
}

// SendToOwner writes the envelope to every live connection the owner
// has. A connection whose send fails is pruned from the set and
// closed rather than retried; zero connections delivers zero with no
// error.
func (r *Registry) SendToOwner(ownerID int64, env notification.Envelope) delivery.SendReport {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.connections[ownerID]))
	for conn := range r.connections[ownerID] {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	return r.sendAll(ownerID, conns, env)
}

// Broadcast writes the envelope to every connection of every owner
// with the same prune-on-failure behavior.
func (r *Registry) Broadcast(env notification.Envelope) delivery.SendReport {
	r.mu.RLock()
	byOwner := make(map[int64][]Conn, len(r.connections))
	for ownerID, set := range r.connections {
		conns := make([]Conn, 0, len(set))
		for conn := range set {
			conns = append(conns, conn)
		}
		byOwner[ownerID] = conns
	}
	r.mu.RUnlock()

	var total delivery.SendReport
	for ownerID, conns := range byOwner {
		report := r.sendAll(ownerID, conns, env)
		total.Delivered += report.Delivered
		total.Pruned += report.Pruned
	}
	return total
}

func (r *Registry) sendAll(ownerID int64, conns []Conn, env notification.Envelope) delivery.SendReport {
	var report delivery.SendReport
	var dead []Conn
	for _, conn := range conns {
		if err := r.send(conn, env); err != nil {
			r.logger.WithError(err).WithField("owner_id", ownerID).
				Debug("pruning connection after failed send")
			dead = append(dead, conn)
			continue
		}
		report.Delivered++
	}

	if len(dead) > 0 {
		r.mu.Lock()
		for _, conn := range dead {
			r.removeLocked(ownerID, conn)
		}
		r.mu.Unlock()
		for _, conn := range dead {
			_ = conn.Close()
		}
		report.Pruned = len(dead)
	}
	return report
}

func (r *Registry) send(conn Conn, env notification.Envelope) error {
	if r.sendTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(r.sendTimeout))
	}
	return conn.WriteJSON(env)
}

// ConnectionCount reports how many live connections an owner has.
func (r *Registry) ConnectionCount(ownerID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections[ownerID])
}

// Close shuts every connection and rejects further registrations.
// Called once at process shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	connections := r.connections
	r.connections = make(map[int64]map[Conn]struct{})
	r.closed = true
	r.mu.Unlock()

	for _, set := range connections {
		for conn := range set {
			_ = conn.Close()
		}
	}
}
