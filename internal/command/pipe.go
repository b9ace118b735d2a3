package command

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

var ErrPipeClosed = errors.New("command: pipe closed")

// Pipe is the pair of streams bound to one context for its lifetime.
type Pipe struct {
	In  *Inbox
	Out *Outbox
}

// NewPipe builds a pipe whose output is delivered through send.
func NewPipe(send func(data string) error) *Pipe {
	return &Pipe{In: NewInbox(), Out: NewOutbox(send)}
}

// Close ends both sides. Pending input stays readable until drained.
func (p *Pipe) Close() {
	p.In.Close()
	p.Out.Close()
}

// Inbox buffers client data for a handler. Push never blocks, so a slow
// handler accumulates input without bound.
type Inbox struct {
	mu     sync.Mutex
	queue  []string
	closed bool
	notify chan struct{}

	// pending is owned by Read.
	pending []byte
}

func NewInbox() *Inbox {
	return &Inbox{notify: make(chan struct{})}
}

// Push appends one chunk. It fails once the inbox is closed.
func (in *Inbox) Push(data string) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return ErrPipeClosed
	}
	in.queue = append(in.queue, data)
	in.wake()
	return nil
}

// Close marks end of input. It is idempotent.
func (in *Inbox) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	in.wake()
}

func (in *Inbox) wake() {
	close(in.notify)
	in.notify = make(chan struct{})
}

// Recv returns the next chunk in arrival order, or io.EOF once the inbox is
// closed and drained.
func (in *Inbox) Recv(ctx context.Context) (string, error) {
	for {
		in.mu.Lock()
		if len(in.queue) > 0 {
			data := in.queue[0]
			in.queue[0] = ""
			in.queue = in.queue[1:]
			in.mu.Unlock()
			return data, nil
		}
		if in.closed {
			in.mu.Unlock()
			return "", io.EOF
		}
		wait := in.notify
		in.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wait:
		}
	}
}

// ReadAll concatenates every chunk until end of input.
func (in *Inbox) ReadAll(ctx context.Context) (string, error) {
	var b strings.Builder
	for {
		data, err := in.Recv(ctx)
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(data)
	}
}

// Read adapts the inbox to io.Reader. It must not be mixed with Recv.
func (in *Inbox) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(in.pending) == 0 {
		data, err := in.Recv(context.Background())
		if err != nil {
			return 0, err
		}
		in.pending = []byte(data)
	}
	n := copy(p, in.pending)
	in.pending = in.pending[n:]
	return n, nil
}

// Outbox forwards handler output to the peer as chunks.
type Outbox struct {
	mu     sync.Mutex
	send   func(data string) error
	closed bool
}

func NewOutbox(send func(data string) error) *Outbox {
	return &Outbox{send: send}
}

// Send delivers one chunk. Close waits for an in-flight Send, so nothing is
// delivered after Close returns.
func (o *Outbox) Send(data string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrPipeClosed
	}
	return o.send(data)
}

// Write adapts the outbox to io.Writer; each call becomes one chunk.
func (o *Outbox) Write(p []byte) (int, error) {
	if err := o.Send(string(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
}
