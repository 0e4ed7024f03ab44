package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/driveline/syncd/pkg/decoder"
)

var ErrMalformedMessage = errors.New("malformed message")

var msgRegistry = map[string]func(json.RawMessage) (Message, error){
	TagRequest:  decodeAs[RequestMsg],
	TagResponse: decodeAs[ResponseMsg],
	TagDelete:   decodeAs[DeleteMsg],
	TagError:    decodeAs[ErrorMsg],
}

func decodeAs[T Message](raw json.RawMessage) (Message, error) {
	m, err := decoder.DecodeStrict[T](raw)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Encode wraps msg under its tag: {"Request":{...}}.
func Encode(msg Message) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformedMessage)
	}

	return json.Marshal(map[string]Message{msg.Tag(): msg})
}

// Decode parses a text frame. The frame must be an object with exactly one known
// tag whose payload has only known fields. Every failure wraps
// ErrMalformedMessage.
func Decode(data []byte) (msg Message, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg, err = nil, fmt.Errorf("%w: %v", ErrMalformedMessage, r)
		}
	}()

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}

	if len(envelope) != 1 {
		return nil, fmt.Errorf("%w: expected exactly one tag, got %d", ErrMalformedMessage, len(envelope))
	}

	for tag, payload := range envelope {
		decode, ok := msgRegistry[tag]
		if !ok {
			return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformedMessage, tag)
		}

		if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
			return nil, fmt.Errorf("%w: %s has no payload", ErrMalformedMessage, tag)
		}

		m, err := decode(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrMalformedMessage, tag, err)
		}

		return m, nil
	}

	// Unreachable, len(envelope) == 1.
	return nil, ErrMalformedMessage
}
