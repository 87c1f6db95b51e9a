package broadcaster

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

type recordingSender struct {
	mu       sync.Mutex
	failures int
	sent     []string
	sentBin  []string
}

func (s *recordingSender) Send(connectionID string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("send failed")
	}
	s.sent = append(s.sent, connectionID)
	return nil
}

func (s *recordingSender) SendBinary(connectionID string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("send failed")
	}
	s.sentBin = append(s.sentBin, connectionID)
	return nil
}

func encodeString(messageName string, payload any) ([]byte, error) {
	return []byte(messageName), nil
}

func TestSendSucceedsOnFirstAttempt(t *testing.T) {
	sender := &recordingSender{}
	b := New(sender, encodeString, WithSleep(func(time.Duration) {}))

	if err := b.Send(context.Background(), "alice", "GameUpdate", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "alice" {
		t.Fatalf("unexpected sends: %+v", sender.sent)
	}
}

func TestSendRetriesUpToMaxAttempts(t *testing.T) {
	sender := &recordingSender{failures: 2}
	var slept []time.Duration
	b := New(sender, encodeString, WithSleep(func(d time.Duration) { slept = append(slept, d) }))

	if err := b.Send(context.Background(), "bob", "GameUpdate", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(slept) != 2 || slept[0] != firstBackoff || slept[1] != secondBackoff {
		t.Fatalf("unexpected backoff schedule: %+v", slept)
	}
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	sender := &recordingSender{failures: maxAttempts}
	b := New(sender, encodeString, WithSleep(func(time.Duration) {}))

	if err := b.Send(context.Background(), "carol", "GameUpdate", nil); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
}

func TestSendReturnsEncodeError(t *testing.T) {
	failingEncode := func(string, any) ([]byte, error) { return nil, errors.New("bad payload") }
	b := New(&recordingSender{}, failingEncode)

	if err := b.Send(context.Background(), "dave", "GameUpdate", nil); err == nil {
		t.Fatalf("expected encode error to propagate")
	}
}

func TestSendHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sender := &recordingSender{failures: 1}
	b := New(sender, encodeString, WithSleep(func(time.Duration) {}))

	if err := b.Send(ctx, "erin", "GameUpdate", nil); err == nil {
		t.Fatalf("expected cancelled context to abort send")
	}
}

func TestSendCompressesPayloadsAboveThreshold(t *testing.T) {
	sender := &recordingSender{}
	large := func(string, any) ([]byte, error) {
		return []byte(strings.Repeat("x", compressionThreshold+1)), nil
	}
	b := New(sender, large, WithSleep(func(time.Duration) {}))

	if err := b.Send(context.Background(), "frank", "GameUpdate", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.sent) != 0 || len(sender.sentBin) != 1 || sender.sentBin[0] != "frank" {
		t.Fatalf("expected a single binary send, got text=%v binary=%v", sender.sent, sender.sentBin)
	}
}

func TestSendLeavesSmallPayloadsUncompressed(t *testing.T) {
	sender := &recordingSender{}
	small := func(string, any) ([]byte, error) { return []byte("tiny"), nil }
	b := New(sender, small, WithSleep(func(time.Duration) {}))

	if err := b.Send(context.Background(), "grace", "GameUpdate", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sender.sentBin) != 0 || len(sender.sent) != 1 {
		t.Fatalf("expected a single text send, got text=%v binary=%v", sender.sent, sender.sentBin)
	}
}

func TestGzipCompressProducesDecodablePayload(t *testing.T) {
	raw := []byte(strings.Repeat("payload", 100))
	compressed, err := gzipCompress(raw)
	if err != nil {
		t.Fatalf("gzipCompress: %v", err)
	}
	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		t.Fatalf("read decompressed: %v", err)
	}
	if out.String() != string(raw) {
		t.Fatalf("decompressed mismatch")
	}
}
