package ws

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"finance_notification_service/internal/domain/notification"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn records writes and can be told to fail them.
type fakeConn struct {
	mu       sync.Mutex
	written  []notification.Envelope
	failSend bool
	closed   bool
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return fmt.Errorf("write on dead connection")
	}
	if env, ok := v.(notification.Envelope); ok {
		c.written = append(c.written, env)
	}
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.written)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func testEnvelope() notification.Envelope {
	return notification.Envelope{Type: "notification", Timestamp: time.Now().UTC()}
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())
	conn := &fakeConn{}

	r.Register(1, conn)
	r.Register(1, conn)
	assert.Equal(t, 1, r.ConnectionCount(1))
}

func TestRegistry_UnregisterAbsentIsNoOp(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())
	r.Unregister(1, &fakeConn{})
	assert.Equal(t, 0, r.ConnectionCount(1))
}

func TestRegistry_SendToOwner_DeliversToAllConnections(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())
	first, second := &fakeConn{}, &fakeConn{}
	other := &fakeConn{}
	r.Register(1, first)
	r.Register(1, second)
	r.Register(2, other)

	report := r.SendToOwner(1, testEnvelope())
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 0, report.Pruned)
	assert.Equal(t, 1, first.writeCount())
	assert.Equal(t, 1, second.writeCount())
	assert.Equal(t, 0, other.writeCount(), "other owners must not receive targeted sends")
}

func TestRegistry_SendToOwner_NoConnections(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())
	report := r.SendToOwner(42, testEnvelope())
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 0, report.Pruned)
}

func TestRegistry_SendToOwner_PrunesDeadConnections(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())
	healthy := &fakeConn{}
	dead := &fakeConn{failSend: true}
	r.Register(1, healthy)
	r.Register(1, dead)

	report := r.SendToOwner(1, testEnvelope())
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 1, report.Pruned)
	assert.True(t, dead.isClosed())
	assert.Equal(t, 1, r.ConnectionCount(1))

	// The pruned connection is gone: no retry on the next send.
	report = r.SendToOwner(1, testEnvelope())
	assert.Equal(t, 1, report.Delivered)
	assert.Equal(t, 0, report.Pruned)
	assert.Equal(t, 2, healthy.writeCount())
}

func TestRegistry_Broadcast_ReachesEveryOwner(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())
	a, b, c := &fakeConn{}, &fakeConn{}, &fakeConn{}
	r.Register(1, a)
	r.Register(2, b)
	r.Register(2, c)

	report := r.Broadcast(testEnvelope())
	assert.Equal(t, 3, report.Delivered)
	assert.Equal(t, 1, a.writeCount())
	assert.Equal(t, 1, b.writeCount())
	assert.Equal(t, 1, c.writeCount())
}

func TestRegistry_Close_RejectsFurtherRegistrations(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())
	conn := &fakeConn{}
	r.Register(1, conn)

	r.Close()
	assert.True(t, conn.isClosed())
	assert.Equal(t, 0, r.ConnectionCount(1))

	r.Register(1, &fakeConn{})
	assert.Equal(t, 0, r.ConnectionCount(1))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(owner int64) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				conn := &fakeConn{}
				r.Register(owner, conn)
				r.SendToOwner(owner, testEnvelope())
				r.Broadcast(testEnvelope())
				r.Unregister(owner, conn)
			}
		}(int64(i % 4))
	}
	wg.Wait()

	for owner := int64(0); owner < 4; owner++ {
		assert.Equal(t, 0, r.ConnectionCount(owner))
	}
}

func TestRegistry_UnregisterRemovesEmptyOwnerSet(t *testing.T) {
	r := NewRegistry(time.Second, quietLogger())
	conn := &fakeConn{}
	r.Register(7, conn)
	require.Equal(t, 1, r.ConnectionCount(7))

	r.Unregister(7, conn)
	assert.Equal(t, 0, r.ConnectionCount(7))

	r.mu.RLock()
	_, exists := r.connections[7]
	r.mu.RUnlock()
	assert.False(t, exists, "empty owner sets must not accumulate")
}
