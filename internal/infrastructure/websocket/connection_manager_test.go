package websocket

import (
	"auction-engine/pkg/logger"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	userID    string
	auctionID string
	failSend  bool

	mu     sync.Mutex
	sent   []string
	closed bool
}

func (f *fakeConn) Send(message interface{}) error {
	if f.failSend {
		return errors.New("broken pipe")
	}
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, string(b))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) UserID() string    { return f.userID }
func (f *fakeConn) AuctionID() string { return f.auctionID }

func TestConnectionManager_BroadcastToAuction(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	alice := &fakeConn{userID: "alice", auctionID: "a1"}
	bob := &fakeConn{userID: "bob", auctionID: "a1", failSend: true}
	carol := &fakeConn{userID: "carol", auctionID: "a2"}

	require.NoError(t, cm.RegisterConnection("alice", "a1", alice))
	require.NoError(t, cm.RegisterConnection("bob", "a1", bob))
	require.NoError(t, cm.RegisterConnection("carol", "a2", carol))

	require.NoError(t, cm.BroadcastToAuction("a1", map[string]any{"type": "bid", "amount": 120}))

	require.Len(t, alice.sent, 1)
	require.JSONEq(t, `{"type":"bid","amount":120}`, alice.sent[0])
	require.Empty(t, carol.sent)
}

func TestConnectionManager_CloseAndUnregisterConnections(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	alice := &fakeConn{userID: "alice", auctionID: "a1"}
	aliceOther := &fakeConn{userID: "alice", auctionID: "a2"}

	require.NoError(t, cm.RegisterConnection("alice", "a1", alice))
	require.NoError(t, cm.RegisterConnection("alice", "a2", aliceOther))

	require.NoError(t, cm.CloseAndUnregisterConnections("a1"))

	require.True(t, alice.closed)
	require.False(t, aliceOther.closed)
	require.Empty(t, cm.GetConnectionsForAuction("a1"))
	require.Len(t, cm.GetConnectionsForUser("alice"), 1)
}

func TestConnectionManager_ReplaceAndRelease(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	first := &fakeConn{userID: "alice", auctionID: "a1"}
	second := &fakeConn{userID: "alice", auctionID: "a1"}

	require.NoError(t, cm.RegisterConnection("alice", "a1", first))
	require.NoError(t, cm.RegisterConnection("alice", "a1", second))
	require.True(t, first.closed)

	// the stale connection's cleanup must not evict its replacement
	require.NoError(t, cm.ReleaseConnection(first))
	require.Len(t, cm.GetConnectionsForAuction("a1"), 1)
	require.Len(t, cm.GetConnectionsForUser("alice"), 1)

	require.NoError(t, cm.ReleaseConnection(second))
	require.Empty(t, cm.GetConnectionsForAuction("a1"))
	require.Empty(t, cm.GetConnectionsForUser("alice"))
}

func TestWebSocketNotifier_NotifyUser(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	alice := &fakeConn{userID: "alice", auctionID: "a1"}
	require.NoError(t, cm.RegisterConnection("alice", "a1", alice))

	notifier := NewWebSocketNotifier(cm)
	require.NoError(t, notifier.NotifyUser(context.Background(), "alice", map[string]string{"type": "kicked"}))
	require.NoError(t, notifier.NotifyUser(context.Background(), "nobody", map[string]string{"type": "kicked"}))

	require.Equal(t, []string{`{"type":"kicked"}`}, alice.sent)
}
