package ft

import (
	"errors"
	"fmt"
)

var (
	// ErrProtocol is a bad or out-of-state message. The client is told and the
	// session carries on.
	ErrProtocol = errors.New("protocol error")

	// ErrStorage is a metadata or blob store failure. The client is told and the
	// session ends.
	ErrStorage = errors.New("storage error")

	ErrResumeMismatch = errors.New("resume mismatch")
	ErrDisconnected   = errors.New("disconnected")
	ErrBlobBusy       = errors.New("blob is being written by another session")
	ErrNotReady       = errors.New("content is not fully synced")
)

func protocolError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

func storageError(err error, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, fmt.Sprintf(format, args...), err)
}
