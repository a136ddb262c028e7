package flow

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func pipe(t *testing.T, opts ...Option) (*Flow, *Flow) {
	t.Helper()
	a, b := net.Pipe()
	left, right := New(a, opts...), New(b, opts...)
	t.Cleanup(func() {
		_ = left.Close()
		_ = right.Close()
	})
	return left, right
}

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	for _, msg := range [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0xAB}, 300)} {
		require.NoError(t, WriteFrame(&buf, msg, MaxFrameSize))
	}

	r := bytes.NewReader(buf.Bytes())
	for _, want := range [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0xAB}, 300)} {
		got, err := ReadFrame(r, r, MaxFrameSize)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ReadFrame(r, r, MaxFrameSize)
	require.ErrorIs(t, err, io.EOF)
}

func TestFrame_Truncated(t *testing.T) {
	framed := AppendFrame(nil, []byte("truncated"))
	r := bytes.NewReader(framed[:4])
	_, err := ReadFrame(r, r, MaxFrameSize)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.ErrorIs(t, WriteFrame(&buf, make([]byte, 11), 10), ErrTooLargeFrame)
	require.Zero(t, buf.Len(), "nothing must be written for a refused frame")

	r := bytes.NewReader(protowire.AppendVarint(nil, 1<<30))
	_, err := ReadFrame(r, r, MaxFrameSize)
	require.ErrorIs(t, err, ErrTooLargeFrame)
}

func TestFrame_MalformedPrefix(t *testing.T) {
	r := bytes.NewReader(bytes.Repeat([]byte{0xFF}, 12))
	_, err := ReadFrame(r, r, MaxFrameSize)
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestFlow_SendRecv(t *testing.T) {
	left, right := pipe(t)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		errCh <- left.Send(ctx, []byte("ping"))
	}()

	msg, err := right.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("ping"), msg)
	require.NoError(t, <-errCh)

	go func() {
		errCh <- right.Send(ctx, []byte("pong"))
	}()
	msg, err = left.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), msg)
	require.NoError(t, <-errCh)
}

func TestFlow_SendTooLarge(t *testing.T) {
	left, _ := pipe(t, WithMaxFrameSize(4))
	require.Equal(t, 4, left.MaxSize())
	require.ErrorIs(t, left.Send(context.Background(), []byte("too long")), ErrTooLargeFrame)
}

func TestFlow_RecvTooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	right := New(b, WithMaxFrameSize(4))
	defer right.Close()

	go func() {
		_, _ = a.Write(AppendFrame(nil, []byte("too long")))
	}()
	_, err := right.Recv(context.Background())
	require.ErrorIs(t, err, ErrTooLargeFrame)
}

func TestFlow_RecvHonoursContext(t *testing.T) {
	_, right := pipe(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := right.Recv(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel = context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = right.Recv(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = right.Recv(ctx)
	require.ErrorIs(t, err, context.Canceled, "an already cancelled context fails fast")
}

func TestFlow_Close(t *testing.T) {
	left, right := pipe(t, WithPeer("right"))
	require.Equal(t, "right", left.Peer())

	require.NoError(t, left.Close())
	require.NoError(t, left.Close())

	require.ErrorIs(t, left.Send(context.Background(), []byte("x")), ErrFlowClosed)
	_, err := left.Recv(context.Background())
	require.ErrorIs(t, err, ErrFlowClosed)

	_, err = right.Recv(context.Background())
	require.ErrorIs(t, err, io.EOF, "the remote end sees the stream ending")
}

func TestFlow_CloseUnblocksRecv(t *testing.T) {
	left, _ := pipe(t)
	errCh := make(chan error, 1)
	go func() {
		_, err := left.Recv(context.Background())
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, left.Close())
	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrFlowClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv was not unblocked by Close")
	}
}

func TestTyped_Proto(t *testing.T) {
	left, right := pipe(t)
	sender := NewTyped[*wrapperspb.StringValue](left, ProtoCodec[*wrapperspb.StringValue]{})
	receiver := NewTyped[*wrapperspb.StringValue](right, ProtoCodec[*wrapperspb.StringValue]{})
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sender.Send(ctx, wrapperspb.String("hello fabric"))
	}()

	msg, err := receiver.Recv(ctx)
	require.NoError(t, err)
	require.True(t, proto.Equal(wrapperspb.String("hello fabric"), msg))
	require.NoError(t, <-errCh)
}

type greeting struct {
	From string `json:"from"`
	Seq  int    `json:"seq"`
}

func TestTyped_JSON(t *testing.T) {
	left, right := pipe(t)
	sender := NewTyped[greeting](left, JSONCodec[greeting]{})
	receiver := NewTyped[greeting](right, JSONCodec[greeting]{})
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		errCh <- sender.Send(ctx, greeting{From: "left", Seq: 3})
	}()

	msg, err := receiver.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, greeting{From: "left", Seq: 3}, msg)
	require.NoError(t, <-errCh)

	require.NoError(t, receiver.Close())
	require.Same(t, right, receiver.Flow())
}

func TestTyped_DecodeError(t *testing.T) {
	left, right := pipe(t)
	receiver := NewTyped[greeting](right, JSONCodec[greeting]{})

	go func() {
		_ = left.Send(context.Background(), []byte("{not json"))
	}()
	_, err := receiver.Recv(context.Background())
	require.ErrorContains(t, err, "decoding message")
}

func TestBytesCodec_Copy(t *testing.T) {
	buf := []byte("shared")
	got, err := BytesCodec{Copy: true}.Unmarshal(buf)
	require.NoError(t, err)
	got[0] = 'S'
	require.Equal(t, byte('s'), buf[0])

	got, err = BytesCodec{}.Unmarshal(buf)
	require.NoError(t, err)
	got[0] = 'S'
	require.Equal(t, byte('S'), buf[0])
}
