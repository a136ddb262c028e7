package quicfab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-metrics"
	"github.com/quic-go/quic-go"
	"github.com/raskyld/kfi"
	"github.com/raskyld/kfi/pkg/flow"
)

// Endpoint is a QUIC listener on a UDP socket. It accepts inbound flows
// and dials outbound ones, reusing one connection per peer.
type Endpoint struct {
	fab    *Fabric
	cfg    *config
	logger *slog.Logger
	msink  metrics.MetricSink
	addr   netip.AddrPort

	// graceful termination asked, do not spam connection errors in logs
	gracefulTerm atomic.Bool
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
	wg           sync.WaitGroup

	flowCh chan *flow.Flow

	// connections by remote address
	peers   map[netip.AddrPort]*peerConn
	peersLk sync.Mutex

	// QUIC layer
	tr *quic.Transport
	ln *quic.Listener

	// UDP layer
	udpLn *net.UDPConn
}

type peerConn struct {
	quic.Connection
	peer Peer
}

func openEndpoint(fab *Fabric, addr netip.AddrPort) (_ *Endpoint, err error) {
	prov := fab.prov
	ctx, cancel := context.WithCancel(context.Background())
	ep := &Endpoint{
		fab:    fab,
		cfg:    &prov.config,
		msink:  prov.msink,
		ctx:    ctx,
		cancel: cancel,
		flowCh: make(chan *flow.Flow),
		peers:  make(map[netip.AddrPort]*peerConn),
	}

	defer func() {
		if err != nil {
			ep.teardown()
		}
	}()

	udpLn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return nil, fmt.Errorf("quicfab: failed to allocate UDP listener: %w", err)
	}
	ep.udpLn = udpLn
	ep.addr = unmap(udpLn.LocalAddr().(*net.UDPAddr).AddrPort())
	ep.logger = fab.logger.With(LabelLocalAddr.L(ep.addr.String()))

	if err := ep.negociateBufferSize(ep.cfg.bufferSize); err != nil {
		return nil, err
	}

	ep.tr = &quic.Transport{
		Conn: udpLn,
	}

	ln, err := ep.tr.Listen(ep.cfg.tlsConfig, ep.quicConfig())
	if err != nil {
		return nil, fmt.Errorf("quicfab: failed to allocate QUIC listener: %w", err)
	}
	ep.ln = ln

	ep.wg.Add(1)
	go ep.acceptConns()

	ep.msink.IncrCounterWithLabels(MetricEndpointOpenCount, 1.0, prov.labels(kfi.LabelFabricName.M(fab.name)))
	ep.logger.Info("endpoint listening")
	return ep, nil
}

func (ep *Endpoint) quicConfig() *quic.Config {
	return &quic.Config{
		Versions:              []quic.Version{quic.Version2, quic.Version1},
		MaxIncomingStreams:    ep.cfg.hintMaxFlows,
		MaxIncomingUniStreams: -1,
		MaxIdleTimeout:        defaultMaxIdleTimeout,
		KeepAlivePeriod:       defaultMaxIdleTimeout / 3,
	}
}

// Addr is the local address of the endpoint.
func (ep *Endpoint) Addr() netip.AddrPort {
	return ep.addr
}

// Fabric returns the fabric the endpoint was opened on.
func (ep *Endpoint) Fabric() *Fabric {
	return ep.fab
}

// Accept waits for a peer to open a flow. A flow is only seen by the
// acceptor once its first frame was sent.
func (ep *Endpoint) Accept(ctx context.Context) (*flow.Flow, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ep.ctx.Done():
		return nil, ErrEndpointClosed
	case fl := <-ep.flowCh:
		return fl, nil
	}
}

// Dial opens a flow to the endpoint listening on addr. When ctx has no
// deadline, the provider dial timeout applies.
func (ep *Endpoint) Dial(ctx context.Context, addr netip.AddrPort) (*flow.Flow, error) {
	if ep.gracefulTerm.Load() {
		return nil, ErrEndpointClosed
	}
	if !addr.IsValid() {
		return nil, ErrInvalidAddr
	}
	addr = unmap(addr)

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ep.cfg.dialTimeout)
		defer cancel()
	}

	mLabels := ep.fab.prov.labels(LabelPeerAddr.M(addr.String()))
	pc, err := ep.connTo(ctx, addr)
	if err != nil {
		ep.msink.IncrCounterWithLabels(
			MetricFlowEstOutErrorCount,
			1.0,
			append(mLabels, kfi.LabelError.M("no_conn_to_host")),
		)
		return nil, err
	}

	stream, err := pc.OpenStreamSync(ctx)
	if err != nil {
		ep.msink.IncrCounterWithLabels(
			MetricFlowEstOutErrorCount,
			1.0,
			append(mLabels, kfi.LabelError.M("cannot_open_stream")),
		)
		return nil, err
	}

	ep.msink.IncrCounterWithLabels(MetricFlowEstOutCount, 1.0, append(mLabels, LabelPeerName.M(pc.peer.Name)))
	ep.logger.Debug("flow opened", "peer", pc.peer, "stream_id", stream.StreamID())
	return flow.New(streamConn{Stream: stream}, flow.WithPeer(pc.peer.Name)), nil
}

// Close terminates every connection and releases the socket. It is
// idempotent.
func (ep *Endpoint) Close() error {
	var err error
	ep.closeOnce.Do(func() {
		err = ep.teardown()
		ep.fab.forget(ep)
		ep.logger.Info("endpoint closed")
	})
	return err
}

func (ep *Endpoint) teardown() error {
	ep.gracefulTerm.Store(true)
	ep.cancel()

	ep.peersLk.Lock()
	for _, pc := range ep.peers {
		_ = QErrShutdown.Close(pc.Connection, "we are shutting down! bye!")
	}
	clear(ep.peers)
	ep.peersLk.Unlock()

	var errs []error
	if ep.ln != nil {
		errs = append(errs, ep.ln.Close())
	}
	if ep.tr != nil {
		errs = append(errs, ep.tr.Close())
	}
	if ep.udpLn != nil {
		errs = append(errs, ep.udpLn.Close())
	}
	ep.wg.Wait()
	return errors.Join(errs...)
}

func (ep *Endpoint) negociateBufferSize(requested int) error {
	size := requested
	for size > 0 {
		if err := ep.udpLn.SetReadBuffer(size); err != nil {
			if ep.cfg.enforceBufferSize {
				return ErrBufferSize
			}
			size = size >> 1
			continue
		}
		if size != requested {
			ep.logger.Warn("using smaller than expected UDP buffer", LabelBufferSize.L(size))
		}
		ep.msink.SetGaugeWithLabels(
			MetricUDPBufferSizeBytes,
			float32(size),
			ep.fab.prov.labels(LabelLocalAddr.M(ep.addr.String())),
		)
		return nil
	}
	return ErrBufferSize
}

func (ep *Endpoint) acceptConns() {
	defer ep.wg.Done()
	for {
		conn, err := ep.ln.Accept(ep.ctx)
		if err != nil {
			if !ep.gracefulTerm.Load() {
				ep.logger.Warn("unexpected QUIC listener closure", kfi.LabelError.L(err))
			}
			return
		}

		if _, err := ep.handleConn(conn); err != nil {
			continue
		}
	}
}

// connTo returns a live connection to addr, dialing one if needed.
func (ep *Endpoint) connTo(ctx context.Context, addr netip.AddrPort) (*peerConn, error) {
	ep.peersLk.Lock()
	pc, ok := ep.peers[addr]
	ep.peersLk.Unlock()
	if ok && pc.Context().Err() == nil {
		return pc, nil
	}

	conn, err := ep.tr.Dial(ctx, net.UDPAddrFromAddrPort(addr), ep.cfg.tlsConfig, ep.quicConfig())
	if ep.gracefulTerm.Load() {
		if conn != nil {
			_ = QErrShutdown.Close(conn, "we are shutting down! bye!")
		}
		return nil, ErrEndpointClosed
	}
	if err != nil {
		return nil, err
	}

	return ep.handleConn(conn)
}

func (ep *Endpoint) handleConn(conn quic.Connection) (*peerConn, error) {
	remote := unmap(conn.RemoteAddr().(*net.UDPAddr).AddrPort())
	logger := ep.logger.With(LabelPeerAddr.L(remote.String()))
	mLabels := ep.fab.prov.labels(LabelPeerAddr.M(remote.String()))

	hostname, reason, err := ep.cfg.resolver(conn.ConnectionState().TLS.PeerCertificates)
	if err != nil {
		logger.Error("failed to resolve hostname", kfi.LabelError.L(err))
		ep.msink.IncrCounterWithLabels(
			MetricConnErrorCount,
			1.0,
			append(mLabels, kfi.LabelError.M("name_resolution")),
		)
		if reason == "" {
			_ = QErrInternal.Close(conn, "unexpected error during hostname resolution")
		} else {
			_ = QErrHostname.Close(conn, fmt.Sprintf("error during resolution: %s", reason))
		}
		return nil, fmt.Errorf("%w: %w", ErrHostnameResolve, err)
	}

	pc := &peerConn{
		Connection: conn,
		peer:       Peer{Name: hostname, Addr: remote},
	}

	ep.peersLk.Lock()
	if ep.gracefulTerm.Load() {
		ep.peersLk.Unlock()
		_ = QErrShutdown.Close(conn, "we are shutting down! bye!")
		return nil, ErrEndpointClosed
	}
	if prev, ok := ep.peers[remote]; ok && prev.Context().Err() == nil && prev.peer.Name != hostname {
		logger.Warn("a peer changed its name", "old", prev.peer.Name, "new", hostname)
	}
	ep.peers[remote] = pc
	ep.wg.Add(1)
	ep.peersLk.Unlock()

	ep.msink.IncrCounterWithLabels(MetricConnEstCount, 1.0, append(mLabels, LabelPeerName.M(hostname)))
	logger.Debug("connection established", "peer", pc.peer)

	go ep.acceptStreams(pc)
	return pc, nil
}

func (ep *Endpoint) acceptStreams(pc *peerConn) {
	defer ep.wg.Done()
	logger := ep.logger.With("peer", pc.peer)
	mLabels := ep.fab.prov.labels(LabelPeerAddr.M(pc.peer.Addr.String()), LabelPeerName.M(pc.peer.Name))

	for {
		stream, err := pc.AcceptStream(ep.ctx)
		if err != nil {
			if !ep.gracefulTerm.Load() {
				logger.Debug("connection stopped accepting streams", kfi.LabelError.L(err))
			}
			return
		}

		ep.msink.IncrCounterWithLabels(MetricFlowEstInCount, 1.0, mLabels)
		fl := flow.New(streamConn{Stream: stream}, flow.WithPeer(pc.peer.Name))
		select {
		case ep.flowCh <- fl:
		case <-ep.ctx.Done():
			_ = fl.Close()
			return
		}
	}
}

// streamConn closes both directions of a stream.
type streamConn struct {
	quic.Stream
}

func (s streamConn) Close() error {
	s.CancelRead(QErrStreamClosed)
	return s.Stream.Close()
}

func unmap(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}
