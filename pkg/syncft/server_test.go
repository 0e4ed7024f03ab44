package syncft

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/driveline/syncd/pkg/blobstore"
	"github.com/driveline/syncd/pkg/clog"
	"github.com/driveline/syncd/pkg/syncdb/stor"
	"github.com/driveline/syncd/pkg/syncft/ft"
	"github.com/driveline/syncd/pkg/syncft/webapi/apimiddleware"
	"github.com/driveline/syncd/pkg/syncft/wire"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

const testHash = "feed0123456789"

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

type testServer struct {
	server *Server
	http   *httptest.Server
	meta   *stor.InMemoryMetadataStor
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithIdleTimeout(t, time.Minute)
}

func newTestServerWithIdleTimeout(t *testing.T, idleTimeout time.Duration) *testServer {
	blobs, err := blobstore.NewLocalBlobStore(t.TempDir(), 2)
	require.NoError(t, err)

	meta := stor.NewInMemoryMetadataStor()
	storage, err := ft.NewStorageContext(meta, blobs)
	require.NoError(t, err)

	logger := clog.NewContextLogger(nopWriteCloser{io.Discard})
	logger.AddLoggingContext(clog.TransferCtx, nopWriteCloser{io.Discard})

	e := echo.New()
	e.HideBanner = true
	s := NewServer(e, storage, ServerOptions{
		IdleTimeout:  idleTimeout,
		ResolveOwner: apimiddleware.StaticTokens(map[string]string{"t-alice": "alice", "t-bob": "bob"}),
		Logger:       logger,
	})
	require.NoError(t, s.Init())

	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
		srv.Close()
	})

	return &testServer{server: s, http: srv, meta: meta}
}

func (ts *testServer) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/api/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"auth-token": {token}})
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func (ts *testServer) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.http.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("auth-token", token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func send(t *testing.T, conn *websocket.Conn, msg wire.Message) {
	t.Helper()
	b, err := wire.Encode(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, b))
}

func receive(t *testing.T, conn *websocket.Conn) wire.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, b, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	msg, err := wire.Decode(b)
	require.NoError(t, err)
	return msg
}

func TestUnauthenticatedConnectionNeverReachesEngine(t *testing.T) {
	ts := newTestServer(t)
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/api/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url, http.Header{"auth-token": {"bogus"}})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUploadThenDownload(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "t-alice")

	payload := bytes.Repeat([]byte("0123456789"), 100)

	send(t, conn, wire.RequestMsg{ContentHash: testHash, DeclaredSize: uint64(len(payload)), Name: "f.txt", Directory: "docs"})
	require.Equal(t, wire.ResponseMsg{ContentHash: testHash, SyncedSize: 0}, receive(t, conn))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload[:400]))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, payload[400:]))

	require.Eventually(t, func() bool {
		blob, err := ts.meta.FindBlob(context.Background(), testHash)
		return err == nil && blob.SyncCompleted
	}, 5*time.Second, 10*time.Millisecond)

	resp := ts.get(t, "/api/files/content?directory=/docs&name=f.txt", "t-alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, testHash, resp.Header.Get("X-Content-Hash"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, payload, body)

	resp = ts.get(t, "/api/files", "t-alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var records []struct {
		Directory   string `json:"directory"`
		Name        string `json:"name"`
		ContentHash string `json:"content_hash"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	require.Equal(t, "/docs", records[0].Directory)

	// Bob has no mapping to the content.
	resp = ts.get(t, "/api/files/content?directory=/docs&name=f.txt", "t-bob")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPartialContentIsNotServed(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "t-alice")

	send(t, conn, wire.RequestMsg{ContentHash: testHash, DeclaredSize: 100, Name: "f"})
	receive(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 10)))

	require.Eventually(t, func() bool {
		resp := ts.get(t, "/api/transfers", "t-alice")
		var transfers []ft.TransferProgress
		if err := json.NewDecoder(resp.Body).Decode(&transfers); err != nil {
			return false
		}
		return len(transfers) == 1 && transfers[0].SyncedSize == 10
	}, 5*time.Second, 10*time.Millisecond)

	resp := ts.get(t, "/api/files/content?name=f", "t-alice")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResumeAcrossConnections(t *testing.T) {
	ts := newTestServer(t)

	conn := ts.dial(t, "t-alice")
	send(t, conn, wire.RequestMsg{ContentHash: testHash, DeclaredSize: 1000, Name: "f"})
	receive(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 400)))
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		blob, err := ts.meta.FindBlob(context.Background(), testHash)
		return err == nil && blob.SyncedSize == 400
	}, 5*time.Second, 10*time.Millisecond)

	// Wait for the first session to give up its writer.
	require.Eventually(t, func() bool {
		return len(ts.server.storage.Leases()) == 0
	}, 5*time.Second, 10*time.Millisecond)

	conn = ts.dial(t, "t-alice")
	send(t, conn, wire.RequestMsg{ContentHash: testHash, DeclaredSize: 1000, Name: "f"})
	require.Equal(t, wire.ResponseMsg{ContentHash: testHash, SyncedSize: 400}, receive(t, conn))
}

func TestStopRecordsProgress(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dial(t, "t-alice")

	send(t, conn, wire.RequestMsg{ContentHash: testHash, DeclaredSize: 1000, Name: "f"})
	receive(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, make([]byte, 250)))

	require.Eventually(t, func() bool {
		list := ts.server.storage.Progress.List()
		return len(list) == 1 && list[0].SyncedSize == 250
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ts.server.Stop(ctx))

	blob, err := ts.meta.FindBlob(context.Background(), testHash)
	require.NoError(t, err)
	require.EqualValues(t, 250, blob.SyncedSize)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestLoggingEndpoints(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodPost, ts.http.URL+"/api/set-logging-level",
		strings.NewReader(`{"context":"transfer","log_level":"debug"}`))
	require.NoError(t, err)
	req.Header.Set("auth-token", "t-alice")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var infos []clog.ContextInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 2)
	require.Equal(t, clog.TransferCtx, infos[1].Name)
	require.Equal(t, "debug", infos[1].Level)

	req, err = http.NewRequest(http.MethodPost, ts.http.URL+"/api/set-logging-level",
		strings.NewReader(`{"context":"nope","log_level":"debug"}`))
	require.NoError(t, err)
	req.Header.Set("auth-token", "t-alice")
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestHello(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.http.URL + "/hello")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnsetIdleTimeoutUsesDefault(t *testing.T) {
	ts := newTestServerWithIdleTimeout(t, 0)
	conn := ts.dial(t, "t-alice")

	send(t, conn, wire.RequestMsg{ContentHash: testHash, DeclaredSize: 10, Name: "f"})
	require.Equal(t, wire.ResponseMsg{ContentHash: testHash, SyncedSize: 0}, receive(t, conn))

	time.Sleep(100 * time.Millisecond)

	send(t, conn, wire.RequestMsg{ContentHash: "other0123", DeclaredSize: 10, Name: "g"})
	require.Equal(t, wire.ResponseMsg{ContentHash: "other0123", SyncedSize: 0}, receive(t, conn))
}
