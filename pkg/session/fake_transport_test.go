package session

import (
	"context"
	"sync"
)

// fakeTransport is an in-memory Transport used to drive Router without a
// real WebSocket, per SPEC_FULL.md §8 ("a fake in-memory transport for
// router-only unit tests").
type fakeTransport struct {
	inbound chan []byte

	mu       sync.Mutex
	outbound [][]byte
	written  chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 32),
		written: make(chan struct{}, 256),
	}
}

func (f *fakeTransport) Read(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-f.inbound:
		if !ok {
			return nil, ErrClosed
		}
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	f.outbound = append(f.outbound, append([]byte(nil), data...))
	f.mu.Unlock()
	select {
	case f.written <- struct{}{}:
	default:
	}
	return nil
}

// send pushes a client frame into the read loop.
func (f *fakeTransport) send(data []byte) {
	f.inbound <- data
}

// close simulates the peer closing the connection.
func (f *fakeTransport) close() {
	close(f.inbound)
}

// messages returns a copy of every frame written so far.
func (f *fakeTransport) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbound))
	copy(out, f.outbound)
	return out
}
