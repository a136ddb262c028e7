package quicfab

import (
	"crypto/x509"
	"log/slog"
	"net/netip"
)

// HostnameResolver resolves the name of a peer from the certificates it
// presented during the handshake.
//
// *Implementations* MUST NOT block, they run on the connection
// establishment path.
//
// On failure, *Implementations* return a non-nil error and may return a
// human-friendly reason, sent to the peer so they can debug the issue.
// An empty reason makes the peer receive a `QErrInternal` instead.
type HostnameResolver func(certs []*x509.Certificate) (hostname string, reason string, err error)

// CommonNameResolver is the default resolver, it uses the x509 Subject
// Common Name of the leaf certificate.
func CommonNameResolver(certs []*x509.Certificate) (string, string, error) {
	if len(certs) == 0 {
		return "", "it seems like you haven't provided a certificate", ErrHostnameResolve
	}
	if certs[0].Subject.CommonName == "" {
		return "", "your certificate has no common name", ErrHostnameResolve
	}
	return certs[0].Subject.CommonName, "", nil
}

// Peer is the remote end of a connection.
type Peer struct {
	Name string
	Addr netip.AddrPort
}

func (p Peer) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", p.Name),
		slog.String("addr", p.Addr.String()),
	)
}
