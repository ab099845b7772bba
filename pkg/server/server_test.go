package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/vcalc/internal/logger"
	"github.com/marmos91/vcalc/internal/protocol/auth"
	"github.com/marmos91/vcalc/pkg/adapter/vcalc"
	"github.com/marmos91/vcalc/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdapter blocks in Serve until ctx is cancelled or Stop is called.
type fakeAdapter struct {
	protocol string
	port     int
	serveErr error

	mu      sync.Mutex
	store   credentials.Store
	stopped bool
	stop    chan struct{}
	once    sync.Once
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stop: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
	case <-f.stop:
	}
	return nil
}

func (f *fakeAdapter) SetStore(store credentials.Store) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store = store
}

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.stop) })
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func (f *fakeAdapter) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func testStore() credentials.Store {
	return credentials.NewMemoryStore(credentials.Table{"alice": "pass123"})
}

func TestNewPanicsOnNilStore(t *testing.T) {
	assert.Panics(t, func() { New(nil, logger.Discard()) })
}

func TestAddAdapterInjectsStore(t *testing.T) {
	store := testStore()
	s := New(store, logger.Discard())
	a := newFakeAdapter("vcalc", 33333)

	require.NoError(t, s.AddAdapter(a))

	assert.Same(t, store, a.store)
	assert.Len(t, s.Adapters(), 1)
}

func TestAddAdapterRejectsDuplicates(t *testing.T) {
	s := New(testStore(), logger.Discard())
	require.NoError(t, s.AddAdapter(newFakeAdapter("vcalc", 33333)))

	assert.Error(t, s.AddAdapter(newFakeAdapter("vcalc", 40000)), "duplicate protocol")
	assert.Error(t, s.AddAdapter(newFakeAdapter("other", 33333)), "duplicate port")
	assert.NoError(t, s.AddAdapter(newFakeAdapter("other", 40000)))
}

func TestServeWithoutAdapters(t *testing.T) {
	s := New(testStore(), logger.Discard())

	assert.Error(t, s.Serve(context.Background()))
}

func TestServeStopsAdaptersOnCancel(t *testing.T) {
	s := New(testStore(), logger.Discard(), WithStopTimeout(time.Second))
	first := newFakeAdapter("first", 1)
	second := newFakeAdapter("second", 2)
	require.NoError(t, s.AddAdapter(first))
	require.NoError(t, s.AddAdapter(second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	assert.True(t, first.wasStopped())
	assert.True(t, second.wasStopped())
}

func TestServeStopsOthersWhenAdapterFails(t *testing.T) {
	s := New(testStore(), logger.Discard())
	healthy := newFakeAdapter("healthy", 1)
	broken := newFakeAdapter("broken", 2)
	broken.serveErr = errors.New("bind failed")
	require.NoError(t, s.AddAdapter(healthy))
	require.NoError(t, s.AddAdapter(broken))

	err := s.Serve(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken adapter error")
	assert.ErrorIs(t, err, broken.serveErr)
	assert.True(t, healthy.wasStopped())
}

func TestServeTwice(t *testing.T) {
	s := New(testStore(), logger.Discard())
	require.NoError(t, s.AddAdapter(newFakeAdapter("vcalc", 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = s.Serve(ctx)

	assert.Error(t, s.Serve(ctx))
	assert.Panics(t, func() { _ = s.AddAdapter(newFakeAdapter("late", 2)) })
}

func TestServeWithVCalcAdapter(t *testing.T) {
	a, err := vcalc.New(vcalc.Config{ShutdownTimeout: time.Second}, nil, logger.Discard())
	require.NoError(t, err)

	s := New(testStore(), logger.Discard())
	require.NoError(t, s.AddAdapter(a))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	select {
	case <-a.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("adapter did not start")
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", a.Port()))
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	_, err = conn.Write([]byte("alice"))
	require.NoError(t, err)

	salt := make([]byte, auth.SaltLength)
	_, err = io.ReadFull(conn, salt)
	require.NoError(t, err)

	digest, err := auth.NewHashEngine().ComputeHash(string(salt), "pass123")
	require.NoError(t, err)
	_, err = conn.Write([]byte(digest))
	require.NoError(t, err)

	verdict := make([]byte, 2)
	_, err = io.ReadFull(conn, verdict)
	require.NoError(t, err)
	assert.Equal(t, auth.ReplyOK, string(verdict))

	// Zero vectors: the server closes without writing anything.
	_, err = conn.Write([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}
