package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kinship/presence"
	"kinship/utils"
)

func testClient(h *Hub, userID string, buffer int) *Client {
	return &Client{ID: utils.GenerateUUID(), UserID: userID, hub: h, send: make(chan []byte, buffer)}
}

func drain(t *testing.T, c *Client) []Message {
	t.Helper()
	var out []Message
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return out
			}
			var m Message
			require.NoError(t, json.Unmarshal(data, &m))
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestEmitReachesEveryConnectionOfUser(t *testing.T) {
	h := NewHub(nil, nil)
	phone := testClient(h, "bob", 8)
	laptop := testClient(h, "bob", 8)
	other := testClient(h, "alice", 8)
	h.Join(phone)
	h.Join(laptop)
	h.Join(other)
	h.Join(phone)

	assert.Equal(t, 3, h.Connections())
	h.Emit("bob", "new_message", map[string]string{"content": "hi"})

	for _, c := range []*Client{phone, laptop} {
		msgs := drain(t, c)
		require.Len(t, msgs, 1)
		assert.Equal(t, "new_message", msgs[0].Event)
	}
	assert.Empty(t, drain(t, other))
}

func TestEmitToOfflineUserIsNoop(t *testing.T) {
	h := NewHub(nil, nil)
	assert.NotPanics(t, func() { h.Emit("nobody", "new_message", nil) })
	assert.False(t, h.IsOnline("nobody"))
}

func TestLeaveIsIdempotent(t *testing.T) {
	h := NewHub(nil, nil)
	c := testClient(h, "bob", 1)
	h.Leave(c)

	h.Join(c)
	assert.True(t, h.IsOnline("bob"))
	h.Leave(c)
	h.Leave(c)
	assert.False(t, h.IsOnline("bob"))
	assert.Zero(t, h.Connections())

	_, ok := <-c.send
	assert.False(t, ok, "send channel is closed on leave")
}

func TestEmitPreservesOrderPerUser(t *testing.T) {
	h := NewHub(nil, nil)
	c := testClient(h, "bob", 128)
	h.Join(c)

	for i := 0; i < 100; i++ {
		h.Emit("bob", "tick", i)
	}
	msgs := drain(t, c)
	require.Len(t, msgs, 100)
	for i, m := range msgs {
		assert.EqualValues(t, i, m.Data)
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	h := NewHub(nil, nil)
	slow := testClient(h, "bob", 1)
	fast := testClient(h, "bob", 8)
	h.Join(slow)
	h.Join(fast)

	h.Emit("bob", "a", nil)
	h.Emit("bob", "b", nil)

	assert.Equal(t, 1, h.Connections())
	assert.True(t, h.IsOnline("bob"))
	assert.Len(t, drain(t, fast), 2)
	assert.Len(t, drain(t, slow), 1)
	_, ok := <-slow.send
	assert.False(t, ok)
}

func TestPresenceFollowsFirstAndLastConnection(t *testing.T) {
	tracker := presence.NewMemory()
	h := NewHub(tracker, nil)
	a := testClient(h, "bob", 1)
	b := testClient(h, "bob", 1)

	h.Join(a)
	h.Join(b)
	h.Leave(a)
	seen, err := tracker.LastSeen(context.Background(), []string{"bob"})
	require.NoError(t, err)
	assert.Empty(t, seen, "bob still has a connection")

	h.Leave(b)
	seen, err = tracker.LastSeen(context.Background(), []string{"bob"})
	require.NoError(t, err)
	assert.Contains(t, seen, "bob")
}

func TestConcurrentJoinEmitLeave(t *testing.T) {
	h := NewHub(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", i%5)
			c := testClient(h, user, 4)
			h.Join(c)
			h.Emit(user, "ping", i)
			h.Leave(c)
			for range c.send {
			}
		}(i)
	}
	wg.Wait()
	assert.Zero(t, h.Connections())
}

// stateTracker remembers the last presence write per user.
type stateTracker struct {
	mu     sync.Mutex
	online map[string]bool
}

func (s *stateTracker) Online(_ context.Context, userID string) error {
	s.mu.Lock()
	s.online[userID] = true
	s.mu.Unlock()
	return nil
}

func (s *stateTracker) Offline(_ context.Context, userID string, _ time.Time) error {
	s.mu.Lock()
	s.online[userID] = false
	s.mu.Unlock()
	return nil
}

func (s *stateTracker) LastSeen(context.Context, []string) (map[string]time.Time, error) {
	return nil, nil
}

func TestPresenceSettlesOnRoomStateWhenLeaveRacesJoin(t *testing.T) {
	tracker := &stateTracker{online: make(map[string]bool)}
	h := NewHub(tracker, nil)

	for i := 0; i < 200; i++ {
		old := testClient(h, "bob", 1)
		h.Join(old)

		next := testClient(h, "bob", 1)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.Leave(old)
		}()
		go func() {
			defer wg.Done()
			h.Join(next)
		}()
		wg.Wait()

		tracker.mu.Lock()
		online := tracker.online["bob"]
		tracker.mu.Unlock()
		require.True(t, online, "iteration %d: bob is connected but recorded offline", i)

		h.Leave(next)
		tracker.mu.Lock()
		online = tracker.online["bob"]
		tracker.mu.Unlock()
		require.False(t, online, "iteration %d", i)
	}
}
