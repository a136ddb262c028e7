package flow

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Codec turns messages of type T into frame payloads and back.
type Codec[T any] interface {
	Marshal(T) ([]byte, error)
	Unmarshal([]byte) (T, error)
}

// BytesCodec sends payloads as is. With Copy set, received buffers are
// cloned so callers may keep them past the next Recv.
type BytesCodec struct {
	Copy bool
}

func (c BytesCodec) Marshal(buf []byte) ([]byte, error) {
	return buf, nil
}

func (c BytesCodec) Unmarshal(buf []byte) ([]byte, error) {
	if !c.Copy {
		return buf, nil
	}
	cloned := make([]byte, len(buf))
	copy(cloned, buf)
	return cloned, nil
}

// ProtoCodec exchanges protobuf messages.
type ProtoCodec[Msg proto.Message] struct{}

func (ProtoCodec[Msg]) Marshal(msg Msg) ([]byte, error) {
	return proto.Marshal(msg)
}

func (ProtoCodec[Msg]) Unmarshal(buf []byte) (Msg, error) {
	var allocated Msg
	allocated = allocated.ProtoReflect().New().Interface().(Msg)
	err := proto.Unmarshal(buf, allocated)
	return allocated, err
}

// JSONCodec exchanges any JSON serializable value.
type JSONCodec[T any] struct{}

func (JSONCodec[T]) Marshal(msg T) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec[T]) Unmarshal(buf []byte) (T, error) {
	var msg T
	err := json.Unmarshal(buf, &msg)
	return msg, err
}

// Typed is a `Flow` exchanging messages of type T.
type Typed[T any] struct {
	flow  *Flow
	codec Codec[T]
}

func NewTyped[T any](f *Flow, codec Codec[T]) *Typed[T] {
	return &Typed[T]{flow: f, codec: codec}
}

func (t *Typed[T]) Send(ctx context.Context, msg T) error {
	buf, err := t.codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("flow: encoding message: %w", err)
	}
	return t.flow.Send(ctx, buf)
}

func (t *Typed[T]) Recv(ctx context.Context) (msg T, err error) {
	buf, err := t.flow.Recv(ctx)
	if err != nil {
		return msg, err
	}
	msg, err = t.codec.Unmarshal(buf)
	if err != nil {
		return msg, fmt.Errorf("flow: decoding message: %w", err)
	}
	return msg, nil
}

// Flow returns the underlying untyped flow.
func (t *Typed[T]) Flow() *Flow {
	return t.flow
}

func (t *Typed[T]) Close() error {
	return t.flow.Close()
}
