package quicfab

import (
	"errors"
	"fmt"

	"github.com/quic-go/quic-go"
)

var (
	ErrNoTLSConfig     = errors.New("quicfab: TLS config is required")
	ErrInvalidAddr     = errors.New("quicfab: the address you provided is invalid")
	ErrBufferSize      = errors.New("quicfab: could not allocate udp buffer")
	ErrHostnameResolve = errors.New("quicfab: could not resolve hostname from certificate")
	ErrFabricClosed    = errors.New("quicfab: fabric closed")
	ErrEndpointClosed  = errors.New("quicfab: endpoint closed")
	ErrProviderClosed  = errors.New("quicfab: provider released")
)

var (
	QErrStreamClosed = quic.StreamErrorCode(0xC)
)

var (
	QErrInternal = QuicApplicationError{
		Code:   0x1,
		Prefix: "internal",
	}
	QErrHostname = QuicApplicationError{
		Code:   0x2,
		Prefix: "hostname",
	}
	QErrShutdown = QuicApplicationError{
		Code:   0x3,
		Prefix: "shutdown",
	}
)

// QuicApplicationError is an application error code sent to the peer
// when we close a connection.
type QuicApplicationError struct {
	Code   uint64
	Prefix string
}

func (qerr *QuicApplicationError) Close(conn quic.Connection, msg string) error {
	if conn != nil {
		return conn.CloseWithError(
			quic.ApplicationErrorCode(qerr.Code),
			fmt.Sprintf("%s: %s", qerr.Prefix, msg),
		)
	}
	return nil
}
