// Package flow exchanges length-prefixed messages over byte streams.
//
// A `Flow` wraps any `io.ReadWriteCloser` (a QUIC stream, a TCP
// connection, a `net.Pipe`...). Every message is sent as one frame: its
// length as a protobuf varint followed by the payload. `Typed` adds a
// `Codec` on top to exchange structured messages.
package flow

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"
)

// MaxFrameSize is the default upper bound of a frame payload.
const MaxFrameSize = 1 << 20

var (
	ErrFlowClosed     = errors.New("flow: closed")
	ErrTooLargeFrame  = errors.New("flow: frame too large")
	ErrMalformedFrame = errors.New("flow: malformed frame")
)

// deadliner is implemented by streams able to interrupt blocked I/O,
// like `net.Conn` and `quic.Stream`.
type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

// Flow is a bidirectional message stream.
//
// Send and Recv can be used concurrently with each other, concurrent
// calls of the same method are serialized. When the underlying stream
// supports deadlines, a cancelled context interrupts a blocked call.
type Flow struct {
	rwc     io.ReadWriteCloser
	dl      deadliner
	reader  *bufio.Reader
	maxSize int
	peer    string

	rlk sync.Mutex
	wlk sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// Option to pass to `New`.
type Option func(*Flow)

// WithMaxFrameSize overrides `MaxFrameSize` for both directions.
func WithMaxFrameSize(size int) Option {
	return func(f *Flow) {
		if size > 0 {
			f.maxSize = size
		}
	}
}

// WithPeer records the identity of the remote end.
func WithPeer(name string) Option {
	return func(f *Flow) {
		f.peer = name
	}
}

func New(rwc io.ReadWriteCloser, opts ...Option) *Flow {
	f := &Flow{
		rwc:     rwc,
		reader:  bufio.NewReader(rwc),
		maxSize: MaxFrameSize,
		closed:  make(chan struct{}),
	}
	f.dl, _ = rwc.(deadliner)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Peer is the identity given with `WithPeer`, if any.
func (f *Flow) Peer() string {
	return f.peer
}

// MaxSize is the largest payload accepted in either direction.
func (f *Flow) MaxSize() int {
	return f.maxSize
}

// Send writes msg as one frame.
func (f *Flow) Send(ctx context.Context, msg []byte) error {
	if len(msg) > f.maxSize {
		return ErrTooLargeFrame
	}

	f.wlk.Lock()
	defer f.wlk.Unlock()
	if err := f.precheck(ctx); err != nil {
		return err
	}

	var setDeadline func(time.Time) error
	if f.dl != nil {
		setDeadline = f.dl.SetWriteDeadline
	}
	unbind := bindContext(ctx, setDeadline)
	err := WriteFrame(f.rwc, msg, f.maxSize)
	unbind()
	return f.mapErr(ctx, err)
}

// Recv blocks until a full frame is received. A Recv interrupted in the
// middle of a frame leaves the flow out of sync, it should be closed.
func (f *Flow) Recv(ctx context.Context) ([]byte, error) {
	f.rlk.Lock()
	defer f.rlk.Unlock()
	if err := f.precheck(ctx); err != nil {
		return nil, err
	}

	var setDeadline func(time.Time) error
	if f.dl != nil {
		setDeadline = f.dl.SetReadDeadline
	}
	unbind := bindContext(ctx, setDeadline)
	buf, err := ReadFrame(f.reader, f.reader, f.maxSize)
	unbind()
	return buf, f.mapErr(ctx, err)
}

// Close closes the underlying stream. Calling it more than once returns
// the result of the first call.
func (f *Flow) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		f.closeErr = f.rwc.Close()
	})
	return f.closeErr
}

func (f *Flow) precheck(ctx context.Context) error {
	select {
	case <-f.closed:
		return ErrFlowClosed
	default:
	}
	return ctx.Err()
}

func (f *Flow) mapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-f.closed:
		return ErrFlowClosed
	default:
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	// The stream deadline may fire right before the context one.
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return context.DeadlineExceeded
	}
	return err
}

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// bindContext applies ctx deadline and cancellation to the stream
// through setDeadline. The returned func MUST be called once the I/O is
// done, it resets the deadline.
func bindContext(ctx context.Context, setDeadline func(time.Time) error) func() {
	if setDeadline == nil {
		return func() {}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = setDeadline(deadline)
	}

	var lk sync.Mutex
	done := false
	stop := context.AfterFunc(ctx, func() {
		lk.Lock()
		defer lk.Unlock()
		if !done {
			_ = setDeadline(aLongTimeAgo)
		}
	})

	return func() {
		stop()
		lk.Lock()
		done = true
		_ = setDeadline(time.Time{})
		lk.Unlock()
	}
}
