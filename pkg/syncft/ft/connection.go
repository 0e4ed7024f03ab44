package ft

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is the framed stream a Session reads from and writes to. Message
// types are the gorilla/websocket constants.
type Connection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

const (
	writeWait       = 10 * time.Second
	maxFrameSize    = 16 << 20
	minPingInterval = time.Second
)

// DefaultIdleTimeout applies when a non-positive idle timeout is given.
const DefaultIdleTimeout = 120 * time.Second

// KeepaliveConn adapts a websocket. Every read must arrive within the idle
// timeout; pings go out at a third of it and each pong pushes the deadline out.
type KeepaliveConn struct {
	conn        *websocket.Conn
	idleTimeout time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

func NewKeepaliveConn(conn *websocket.Conn, idleTimeout time.Duration) *KeepaliveConn {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}

	c := &KeepaliveConn{
		conn:        conn,
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
	}

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	go c.pingLoop()

	return c
}

func (c *KeepaliveConn) ReadMessage() (int, []byte, error) {
	mt, p, err := c.conn.ReadMessage()
	if err == nil {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	}
	return mt, p, err
}

func (c *KeepaliveConn) WriteMessage(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

func (c *KeepaliveConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})

	return err
}

func (c *KeepaliveConn) pingLoop() {
	interval := c.idleTimeout / 3
	if interval < minPingInterval {
		interval = minPingInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
