package ft

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/driveline/syncd/pkg/blobstore"
	"github.com/driveline/syncd/pkg/syncdb"
	"github.com/driveline/syncd/pkg/syncdb/stor"
	"github.com/driveline/syncd/pkg/syncft/wire"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type frame struct {
	messageType int
	data        []byte
}

// fakeConn is a scripted Connection. Frames pushed with send are read by the
// session; everything the session writes lands in out.
type fakeConn struct {
	in         chan frame
	out        chan []byte
	closed     chan struct{}
	closeOnce  sync.Once
	inOnce     sync.Once
	failWrites bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan frame, 64),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return 0, nil, io.EOF
		}
		return f.messageType, f.data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	if c.failWrites {
		return errors.New("broken pipe")
	}

	c.out <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) sendMsg(t *testing.T, msg wire.Message) {
	t.Helper()
	b, err := wire.Encode(msg)
	require.NoError(t, err)
	c.in <- frame{websocket.TextMessage, b}
}

func (c *fakeConn) sendText(s string) {
	c.in <- frame{websocket.TextMessage, []byte(s)}
}

func (c *fakeConn) sendBinary(b []byte) {
	c.in <- frame{websocket.BinaryMessage, b}
}

// hangUp simulates the peer going away after the queued frames are read.
func (c *fakeConn) hangUp() {
	c.inOnce.Do(func() { close(c.in) })
}

func (c *fakeConn) expect(t *testing.T) wire.Message {
	t.Helper()
	select {
	case b := <-c.out:
		msg, err := wire.Decode(b)
		require.NoError(t, err)
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a message from the session")
		return nil
	}
}

func (c *fakeConn) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case b := <-c.out:
		t.Fatalf("unexpected message %s", b)
	default:
	}
}

type harness struct {
	t     *testing.T
	meta  stor.MetadataStor
	blobs *blobstore.LocalBlobStore
	sc    *StorageContext
}

func newHarness(t *testing.T) *harness {
	blobs, err := blobstore.NewLocalBlobStore(t.TempDir(), 2)
	require.NoError(t, err)

	meta := stor.NewGormMetadataStor(syncdb.MustOpenInMemory())
	sc, err := NewStorageContext(meta, blobs)
	require.NoError(t, err)

	return &harness{t: t, meta: meta, blobs: blobs, sc: sc}
}

type running struct {
	conn    *fakeConn
	session *Session
	errc    chan error
	cancel  context.CancelFunc
}

func (h *harness) start(owner string, opts SessionOptions) *running {
	return h.startConn(owner, newFakeConn(), opts)
}

func (h *harness) startConn(owner string, conn *fakeConn, opts SessionOptions) *running {
	s, err := NewSession(owner, conn, h.sc, opts)
	require.NoError(h.t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	h.t.Cleanup(func() {
		cancel()
		conn.hangUp()
	})

	return &running{conn: conn, session: s, errc: errc, cancel: cancel}
}

// wait blocks until Run returns.
func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("session did not end")
		return nil
	}
}

// finish hangs up and waits for the session to finalize.
func (r *running) finish(t *testing.T) {
	t.Helper()
	r.conn.hangUp()
	require.NoError(t, r.wait(t))
}

func (h *harness) blobContent(hash string) string {
	r, err := h.blobs.OpenReader(context.Background(), hash)
	require.NoError(h.t, err)
	defer r.Close()

	b, err := io.ReadAll(r)
	require.NoError(h.t, err)
	return string(b)
}

func bytesOf(n int, c byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = c
	}
	return b
}
