package kfi

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-metrics"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, *metrics.InmemSink) {
	t.Helper()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}).WithAttrs([]slog.Attr{
		{Key: "test", Value: slog.StringValue(t.Name())},
	})
	sink := metrics.NewInmemSink(time.Minute, time.Minute)
	reg, err := New(WithLog(handler), WithMetricSink(sink))
	require.NoError(t, err)
	return reg, sink
}

func counter(t *testing.T, sink *metrics.InmemSink, key string) int {
	t.Helper()
	data := sink.Data()
	require.NotEmpty(t, data)
	val, ok := data[len(data)-1].Counters[key]
	if !ok {
		return 0
	}
	return val.Count
}

// stubProvider has an identity and a release hook, nothing else.
type stubProvider struct {
	name    string
	version uint32

	lk       sync.Mutex
	releases int
	returned []*Chain
}

func (p *stubProvider) Name() string    { return p.name }
func (p *stubProvider) Version() uint32 { return p.version }

func (p *stubProvider) Release(chain *Chain) {
	p.lk.Lock()
	defer p.lk.Unlock()
	if chain == nil {
		p.releases++
		return
	}
	p.returned = append(p.returned, chain)
}

func (p *stubProvider) releaseCount() int {
	p.lk.Lock()
	defer p.lk.Unlock()
	return p.releases
}

// discoveryProvider answers discovery with fresh copies of infos, or err.
type discoveryProvider struct {
	stubProvider
	infos []*Info
	err   error

	calls int
}

func (p *discoveryProvider) GetInfo(version uint32, hints *Info) (*Chain, error) {
	p.lk.Lock()
	p.calls++
	p.lk.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	chain := NewChain()
	for _, info := range p.infos {
		chain.Push(info.Clone())
	}
	return chain, nil
}

// mockProvider records every call through testify's mock.
type mockProvider struct {
	name    string
	version uint32
	m       mock.Mock
}

func (p *mockProvider) Name() string    { return p.name }
func (p *mockProvider) Version() uint32 { return p.version }

func (p *mockProvider) GetInfo(version uint32, hints *Info) (*Chain, error) {
	args := p.m.Called(version, hints)
	chain, _ := args.Get(0).(*Chain)
	return chain, args.Error(1)
}

func (p *mockProvider) OpenFabric(attr *FabricAttr, context any) (Fabric, error) {
	args := p.m.Called(attr, context)
	fabric, _ := args.Get(0).(Fabric)
	return fabric, args.Error(1)
}

func (p *mockProvider) Release(chain *Chain) {
	p.m.Called(chain)
}

type testFabric struct {
	name   string
	closed bool
}

func (f *testFabric) Name() string { return f.name }

func (f *testFabric) Close() error {
	f.closed = true
	return nil
}

func namedInfo(fabricName string) *Info {
	info := AllocInfo()
	info.Caps = CapMsg | CapSend | CapRecv
	info.FabricAttr.Name = fabricName
	return info
}
