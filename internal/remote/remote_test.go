package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/tracemon/internal/engine"
	"github.com/roach88/tracemon/internal/formula"
	"github.com/roach88/tracemon/internal/ir"
	"github.com/roach88/tracemon/internal/server"
	"github.com/roach88/tracemon/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

// startEngine runs an engine loop for the duration of the test.
func startEngine(t *testing.T, specs []ir.MonitorSpec) *engine.Engine {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	e, err := engine.New(st, specs, engine.WithClock(engine.NewLogicalClock()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		st.Close()
	})
	return e
}

// startPeer serves an engine over HTTP.
func startPeer(t *testing.T, name string) (*engine.Engine, *Client) {
	t.Helper()
	e := startEngine(t, nil)
	ts := httptest.NewServer(server.New(e).Handler())
	t.Cleanup(ts.Close)
	return e, NewClient(name, ts.URL+"/")
}

func TestClientRegisterAndFetch(t *testing.T) {
	_, bob := startPeer(t, "bob")
	ctx := context.Background()

	kv, err := bob.FetchKnowledge(ctx)
	require.NoError(t, err)
	assert.Empty(t, kv)

	kv, err = bob.RegisterFormula(ctx, engine.RemoteFormula{
		FID:       "fid-1",
		Formula:   "F(login('root'))",
		Target:    "alice",
		Knowledge: []ir.KVEntry{{FID: "other", Agent: "alice", Value: ir.True, Timestamp: 4}},
	})
	require.NoError(t, err)
	require.Len(t, kv, 1)
	assert.Equal(t, "other", kv[0].FID)

	res, err := bob.PushEvent(ctx, "http", "{login('root')}")
	require.NoError(t, err)
	assert.Equal(t, ir.True, res.Verdicts["fid-1"])

	kv, err = bob.FetchKnowledge(ctx)
	require.NoError(t, err)
	require.Len(t, kv, 2)
	assert.Equal(t, ir.KVEntry{FID: "fid-1", Agent: "fid-1", Value: ir.True, Timestamp: 1}, kv[1])
}

func TestClientStatusError(t *testing.T) {
	_, bob := startPeer(t, "bob")

	_, err := bob.RegisterFormula(context.Background(), engine.RemoteFormula{Formula: "p"})
	require.Error(t, err)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestClientUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewClient("gone", url).FetchKnowledge(context.Background())
	assert.Error(t, err)
}

func TestSyncOnce(t *testing.T) {
	_, bob := startPeer(t, "bob")
	alice := startEngine(t, []ir.MonitorSpec{{ID: "guard", Formula: "@bob(F(login('root')))"}})
	ctx := context.Background()

	var remotes map[string][]formula.At
	require.NoError(t, alice.Do(ctx, func(context.Context) error {
		remotes = alice.RemoteFormulas()
		return nil
	}))
	require.Len(t, remotes["bob"], 1)
	fid := remotes["bob"][0].FID

	s := NewSyncer(alice, "alice", []*Client{bob}, time.Hour, zaptest.NewLogger(t))
	require.NoError(t, s.SyncOnce(ctx))

	v, ok := alice.Knowledge().Lookup(fid)
	require.True(t, ok)
	assert.Equal(t, ir.Unknown, v, "bob has seen nothing yet")

	_, err := bob.PushEvent(ctx, "http", "{login('root')}")
	require.NoError(t, err)
	require.NoError(t, s.SyncOnce(ctx))

	v, ok = alice.Knowledge().Lookup(fid)
	require.True(t, ok)
	assert.Equal(t, ir.True, v)
}

func TestSyncOnceReportsFailedPeers(t *testing.T) {
	_, bob := startPeer(t, "bob")
	ts := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(ts.Close)
	carol := NewClient("carol", ts.URL)

	alice := startEngine(t, nil)

	s := NewSyncer(alice, "alice", []*Client{bob, carol}, time.Hour, nil)
	err := s.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carol")
}

func TestSyncerRunStopsOnCancel(t *testing.T) {
	_, bob := startPeer(t, "bob")
	alice := startEngine(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewSyncer(alice, "alice", []*Client{bob}, 10*time.Millisecond, nil).Run(ctx)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("syncer did not stop")
	}
}
