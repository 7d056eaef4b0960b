package card

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu      sync.Mutex
	removed bool
	closed  bool
}

func (c *fakeConn) Transmit(data []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removed {
		return nil, errors.New("card removed")
	}
	return []byte{0x90, 0x00}, nil
}

func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type fakeReaders struct {
	readers []string
	cards   map[string]*fakeConn
	listErr error
}

func (f *fakeReaders) ListReaders() ([]string, error) {
	return f.readers, f.listErr
}

func (f *fakeReaders) Connect(reader string) (Conn, error) {
	c, ok := f.cards[reader]
	if !ok || c.removed {
		return nil, errors.New("no card")
	}
	return c, nil
}

func (f *fakeReaders) Release() error {
	return nil
}

func TestWatcherFiresOncePerTap(t *testing.T) {
	readers := &fakeReaders{readers: []string{"reader0"}, cards: map[string]*fakeConn{}}
	w := NewWatcher(readers, time.Millisecond, time.Second)

	assert.Empty(t, w.Poll())

	readers.cards["reader0"] = &fakeConn{}
	taps := w.Poll()
	require.Len(t, taps, 1)

	// 卡片仍在读卡器上，不重复触发
	assert.Empty(t, w.Poll())
	assert.Empty(t, w.Poll())

	// 移走后重新放上
	readers.cards["reader0"].removed = true
	assert.Empty(t, w.Poll())
	readers.cards["reader0"] = &fakeConn{}
	assert.Len(t, w.Poll(), 1)
}

func TestWatcherDropsVanishedReader(t *testing.T) {
	conn := &fakeConn{}
	readers := &fakeReaders{readers: []string{"reader0"}, cards: map[string]*fakeConn{"reader0": conn}}
	w := NewWatcher(readers, time.Millisecond, time.Second)

	require.Len(t, w.Poll(), 1)

	readers.readers = nil
	readers.listErr = errors.New(noReaderError)
	assert.Empty(t, w.Poll())
	assert.True(t, conn.closed)
	assert.Empty(t, w.present)
}

func TestWatcherWaitForTap(t *testing.T) {
	readers := &fakeReaders{readers: []string{"reader0"}, cards: map[string]*fakeConn{"reader0": {}}}
	w := NewWatcher(readers, time.Millisecond, time.Second)

	client, err := w.WaitForTap(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, client)
}

func TestTransceiveTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	tr := newReaderTransceiver(&fakeReaders{}, "reader0", blockingConn{block: block}, 10*time.Millisecond)
	_, err := tr.Transceive(t.Context(), []byte{0x00})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

type blockingConn struct {
	block chan struct{}
}

func (b blockingConn) Transmit([]byte) ([]byte, error) {
	<-b.block
	return nil, errors.New("closed")
}

func (b blockingConn) Disconnect() error {
	return nil
}

// lockedConn 与 pcsclite 一样，Transmit 与 Disconnect 共用一把锁
type lockedConn struct {
	mu           sync.Mutex
	release      chan struct{}
	disconnected chan struct{}
}

func (c *lockedConn) Transmit([]byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	<-c.release
	return nil, errors.New("card removed")
}

func (c *lockedConn) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	close(c.disconnected)
	return nil
}

func TestTransceiveTimeoutWithSharedConnLock(t *testing.T) {
	conn := &lockedConn{release: make(chan struct{}), disconnected: make(chan struct{})}
	tr := newReaderTransceiver(&fakeReaders{}, "reader0", conn, 20*time.Millisecond)

	returned := make(chan error, 1)
	go func() {
		_, err := tr.Transceive(t.Context(), []byte{0x00})
		returned <- err
	}()

	select {
	case err := <-returned:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	case <-time.After(500 * time.Millisecond):
		close(conn.release)
		t.Fatal("Transceive did not return after its timeout")
	}

	tr.mu.Lock()
	assert.Nil(t, tr.conn)
	tr.mu.Unlock()

	// 挂起的 Transmit 结束后连接才被断开
	select {
	case <-conn.disconnected:
		t.Fatal("disconnected while transmit was still running")
	default:
	}
	close(conn.release)
	select {
	case <-conn.disconnected:
	case <-time.After(time.Second):
		t.Fatal("connection was never disconnected")
	}
}
