package ft

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/apex/log"
	"github.com/driveline/syncd/pkg/blobstore"
	"github.com/driveline/syncd/pkg/clog"
	"github.com/driveline/syncd/pkg/syncft/wire"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-uuid"
)

type State int

const (
	StateIdle State = iota
	StateReceiving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReceiving:
		return "receiving"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	DefaultCheckpointChunks   = 100
	DefaultCheckpointInterval = 30 * time.Second
)

type SessionOptions struct {
	ShardWidth int

	// An in-flight blob is synced and its progress recorded after this many
	// chunks or this much time, whichever comes first.
	CheckpointChunks   int
	CheckpointInterval time.Duration

	// SingleFileSession ends the session after the first completed file.
	SingleFileSession bool
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.ShardWidth < 1 {
		o.ShardWidth = blobstore.DefaultShardWidth
	}

	if o.CheckpointChunks < 1 {
		o.CheckpointChunks = DefaultCheckpointChunks
	}

	if o.CheckpointInterval <= 0 {
		o.CheckpointInterval = DefaultCheckpointInterval
	}

	return o
}

// activeTransfer is the blob a session is currently receiving.
type activeTransfer struct {
	hash     string
	declared uint64
	synced   uint64
	writer   blobstore.Writer

	chunksSinceCheckpoint int
	lastCheckpoint        time.Time
}

// Session drives one connection. It is owned by a single goroutine and frames
// are handled strictly in arrival order.
type Session struct {
	ID      string
	owner   string
	conn    Connection
	storage *StorageContext
	opts    SessionOptions
	log     *log.Entry

	state  State
	active *activeTransfer
}

// NewSession refuses to build a session without a resolved owner.
func NewSession(owner string, conn Connection, storage *StorageContext, opts SessionOptions) (*Session, error) {
	if owner == "" {
		return nil, fmt.Errorf("session requires an owner")
	}

	if conn == nil || storage == nil {
		return nil, fmt.Errorf("session requires a connection and storage")
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:      id,
		owner:   owner,
		conn:    conn,
		storage: storage,
		opts:    opts.withDefaults(),
		log:     clog.UsingCtx(clog.TransferCtx).WithFields(log.Fields{"session": id, "owner": owner}),
		state:   StateIdle,
	}, nil
}

func (s *Session) State() State {
	return s.state
}

// Run reads frames until the peer goes away, ctx is cancelled, a storage error
// occurs, or a single-file session completes its file. A disconnect is not an
// error. Whatever the exit path, an open writer is closed and its progress
// recorded before Run returns.
func (s *Session) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.Close()
	})
	defer stop()

	s.log.Info("Session started")
	defer s.log.Info("Session ended")

	// Storage steps must finish even if the server is shutting down.
	opCtx := context.WithoutCancel(ctx)
	defer s.finalize(opCtx)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.WithError(err).Debug("Connection closed")
			return nil
		}

		done, err := s.handleFrame(opCtx, messageType, data)
		if err != nil {
			return err
		}

		if done {
			return nil
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, messageType int, data []byte) (bool, error) {
	switch messageType {
	case websocket.TextMessage:
		return s.handleControl(ctx, data)
	case websocket.BinaryMessage:
		return s.handleChunk(ctx, data)
	default:
		return false, nil
	}
}

func (s *Session) handleControl(ctx context.Context, data []byte) (bool, error) {
	msg, err := wire.Decode(data)
	if err != nil {
		return s.reportError(fmt.Errorf("%w: %w", ErrProtocol, err))
	}

	switch m := msg.(type) {
	case wire.RequestMsg:
		return s.handleRequest(ctx, m)
	case wire.DeleteMsg:
		return s.handleDelete(ctx, m)
	default:
		return s.reportError(protocolError("unexpected %s message from client", msg.Tag()))
	}
}

func (s *Session) handleRequest(ctx context.Context, req wire.RequestMsg) (bool, error) {
	if err := req.Validate(s.opts.ShardWidth); err != nil {
		return s.reportError(protocolError("invalid request: %s", err))
	}

	// At most one open writer per session.
	if err := s.finishActive(ctx); err != nil {
		return s.reportError(err)
	}

	plan, err := s.storage.BeginTransfer(ctx, s.ID, s.owner, req)
	if err != nil {
		return s.reportError(err)
	}

	l := s.log.WithFields(log.Fields{"hash": plan.ContentHash, "path": path.Join(req.Directory, req.Name)})

	if plan.Complete {
		l.Debug("Content already synced")
		if err := s.send(wire.ResponseMsg{ContentHash: plan.ContentHash, SyncedSize: plan.SyncedSize}); err != nil {
			return true, err
		}
		return s.opts.SingleFileSession, nil
	}

	s.active = &activeTransfer{
		hash:           plan.ContentHash,
		declared:       plan.DeclaredSize,
		synced:         plan.SyncedSize,
		writer:         plan.Writer,
		lastCheckpoint: time.Now(),
	}
	s.state = StateReceiving

	s.storage.Progress.Start(TransferProgress{
		SessionID:    s.ID,
		OwnerID:      s.owner,
		ContentHash:  plan.ContentHash,
		Directory:    req.Directory,
		Name:         req.Name,
		SyncedSize:   plan.SyncedSize,
		DeclaredSize: plan.DeclaredSize,
	})

	l.WithFields(log.Fields{"resume_at": plan.SyncedSize, "declared_size": plan.DeclaredSize}).Info("Receiving")

	if err := s.send(wire.ResponseMsg{ContentHash: plan.ContentHash, SyncedSize: plan.SyncedSize}); err != nil {
		return true, err
	}

	return false, nil
}

func (s *Session) handleChunk(ctx context.Context, data []byte) (bool, error) {
	at := s.active
	if at == nil {
		s.log.WithField("bytes", len(data)).Warn("Binary frame with no active transfer, dropped")
		return false, nil
	}

	if remaining := at.declared - at.synced; uint64(len(data)) > remaining {
		s.log.WithFields(log.Fields{"hash": at.hash, "dropped": uint64(len(data)) - remaining}).
			Warn("Chunk runs past declared size, extra bytes dropped")
		data = data[:remaining]
	}

	n, err := at.writer.Write(data)
	at.synced += uint64(n)
	if err != nil {
		return s.reportError(storageError(err, "write %s", at.hash))
	}

	s.storage.Progress.Update(s.ID, at.synced)

	if at.synced >= at.declared {
		if err := s.finishActive(ctx); err != nil {
			return s.reportError(err)
		}

		s.log.WithFields(log.Fields{"hash": at.hash, "size": at.synced}).Info("Transfer complete")
		return s.opts.SingleFileSession, nil
	}

	at.chunksSinceCheckpoint++
	if at.chunksSinceCheckpoint >= s.opts.CheckpointChunks || time.Since(at.lastCheckpoint) >= s.opts.CheckpointInterval {
		if err := s.storage.Checkpoint(ctx, at.hash, at.writer, at.synced); err != nil {
			return s.reportError(err)
		}
		at.chunksSinceCheckpoint = 0
		at.lastCheckpoint = time.Now()
	}

	return false, nil
}

func (s *Session) handleDelete(ctx context.Context, msg wire.DeleteMsg) (bool, error) {
	if err := msg.Validate(s.opts.ShardWidth); err != nil {
		return s.reportError(protocolError("invalid delete: %s", err))
	}

	// Deleting what we are receiving closes it out first.
	if s.active != nil && s.active.hash == msg.ContentHash {
		if err := s.finishActive(ctx); err != nil {
			return s.reportError(err)
		}
	}

	reply, err := s.storage.DeleteFile(ctx, s.ID, s.owner, msg)
	if err != nil {
		return s.reportError(err)
	}

	s.log.WithFields(log.Fields{"hash": msg.ContentHash, "remaining": reply.SyncedSize}).Info("Deleted")

	if err := s.send(reply); err != nil {
		return true, err
	}

	return false, nil
}

// finishActive closes the active writer and records its progress. It is a no-op
// when nothing is active.
func (s *Session) finishActive(ctx context.Context) error {
	at := s.active
	if at == nil {
		return nil
	}

	s.active = nil
	s.state = StateIdle
	s.storage.Progress.Remove(s.ID)

	return s.storage.FinishTransfer(ctx, s.ID, at.hash, at.writer, at.synced)
}

func (s *Session) finalize(ctx context.Context) {
	if s.active == nil {
		return
	}

	hash, synced := s.active.hash, s.active.synced
	if err := s.finishActive(ctx); err != nil {
		s.log.WithError(err).WithField("hash", hash).Error("Failed to record progress on exit")
		return
	}

	s.log.WithFields(log.Fields{"hash": hash, "synced_size": synced}).Info("Recorded partial progress")
}

// reportError sends err to the client as an Error message. Protocol errors keep
// the session going; anything else ends it.
func (s *Session) reportError(err error) (bool, error) {
	recoverable := errors.Is(err, ErrProtocol)

	l := s.log.WithError(err)
	if recoverable {
		l.Warn("Protocol error")
	} else {
		l.Error("Storage error, ending session")
	}

	if sendErr := s.send(wire.ErrorMsg{Message: err.Error()}); sendErr != nil {
		if recoverable {
			return true, sendErr
		}
		return true, err
	}

	if recoverable {
		return false, nil
	}

	return true, err
}

func (s *Session) send(msg wire.Message) error {
	b, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}

	return nil
}
