// Package broadcaster is the boundary adapter between the rest of the
// server and a live connection (spec §4.8): best-effort, non-blocking,
// fire-and-forget delivery with a bounded retry budget. A dropped message
// is never fatal — the Scheduler's next broadcast supersedes it.
package broadcaster

import (
	"bytes"
	"context"
	"time"

	"github.com/klauspost/compress/gzip"

	"pongserver/internal/logging"
)

// Sender is the minimal surface a transport must expose to be broadcast to.
type Sender interface {
	// Send enqueues raw bytes for delivery to connectionId as a text frame.
	// It must return promptly — Broadcaster treats a returned error as a
	// failed attempt, not as a signal to block.
	Send(connectionID string, raw []byte) error
	// SendBinary enqueues raw bytes for delivery to connectionId as a
	// binary frame, used for gzip-compressed payloads.
	SendBinary(connectionID string, raw []byte) error
}

// Encoder marshals a message name and payload into wire bytes.
type Encoder func(messageName string, payload any) ([]byte, error)

const (
	maxAttempts  = 3
	firstBackoff = 100 * time.Millisecond
	secondBackoff = 200 * time.Millisecond

	// compressionThreshold is the encoded payload size above which Send
	// gzip-compresses the frame instead of sending it plain. GameUpdate
	// frames for an active rally sit comfortably under this; a frame
	// carrying an unusually large payload (e.g. future expansion fields)
	// is worth the CPU to shrink.
	compressionThreshold = 512
)

// Broadcaster makes up to three send attempts (spec §4.8: "≤3 attempts,
// exponential backoff 100 ms, 200 ms") before dropping and logging.
type Broadcaster struct {
	sender  Sender
	encode  Encoder
	log     *logging.Logger
	sleep   func(time.Duration)
}

// Option customises Broadcaster construction.
type Option func(*Broadcaster)

// WithLogger overrides the broadcaster's logger.
func WithLogger(log *logging.Logger) Option {
	return func(b *Broadcaster) {
		if log != nil {
			b.log = log
		}
	}
}

// WithSleep overrides the backoff sleep function, for deterministic tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(b *Broadcaster) {
		if sleep != nil {
			b.sleep = sleep
		}
	}
}

// New constructs a Broadcaster over the given Sender and wire Encoder.
func New(sender Sender, encode Encoder, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		sender: sender,
		encode: encode,
		log:    logging.L(),
		sleep:  time.Sleep,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Send encodes payload and attempts delivery to connectionId, retrying on
// failure per the bounded backoff schedule. It never blocks the caller for
// longer than the retry budget and never panics on a dead connection.
func (b *Broadcaster) Send(ctx context.Context, connectionID, messageName string, payload any) error {
	raw, err := b.encode(messageName, payload)
	if err != nil {
		b.log.Error("broadcaster encode failed",
			logging.String("connection_id", connectionID),
			logging.String("message_name", messageName),
			logging.Error(err))
		return err
	}

	send := b.sender.Send
	if len(raw) > compressionThreshold {
		if compressed, err := gzipCompress(raw); err == nil {
			raw = compressed
			send = b.sender.SendBinary
		} else {
			b.log.Warn("broadcaster gzip compression failed, sending uncompressed",
				logging.String("connection_id", connectionID), logging.Error(err))
		}
	}

	backoffs := [maxAttempts - 1]time.Duration{firstBackoff, secondBackoff}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := send(connectionID, raw); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < maxAttempts-1 {
			b.sleep(backoffs[attempt])
		}
	}
	b.log.Warn("broadcaster dropped message after retries",
		logging.String("connection_id", connectionID),
		logging.String("message_name", messageName),
		logging.Error(lastErr))
	return lastErr
}

func gzipCompress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
