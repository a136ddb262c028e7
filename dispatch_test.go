package kfi

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOpenFabric_InvalidArguments(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p := &mockProvider{name: "quic", version: 1}
	require.NoError(t, reg.Register(p))

	tests := []struct {
		name string
		attr *FabricAttr
	}{
		{name: "nil attributes", attr: nil},
		{name: "no provider name", attr: &FabricAttr{Name: "fab"}},
		{name: "no fabric name", attr: &FabricAttr{ProvName: "quic"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fabric, err := reg.OpenFabric(tc.attr, nil)
			require.ErrorIs(t, err, ErrInvalidArgument)
			require.Nil(t, fabric)
		})
	}
	p.m.AssertNotCalled(t, "OpenFabric", mock.Anything, mock.Anything)
}

func TestOpenFabric_InvalidArgumentsOnClosedRegistry(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Close())

	_, err := reg.OpenFabric(&FabricAttr{Name: "fab"}, nil)
	require.ErrorIs(t, err, ErrInvalidArgument, "arguments are checked before the registry is looked at")
}

func TestOpenFabric_UnknownProvider(t *testing.T) {
	reg, sink := newTestRegistry(t)
	_, err := reg.OpenFabric(&FabricAttr{Name: "fab", ProvName: "verbs"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, counter(t, sink, "kfi.fabric.open.error.count;provider=verbs;error=not_found"))
}

func TestOpenFabric_ProviderWithoutFabricSupport(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Register(&discoveryProvider{
		stubProvider: stubProvider{name: "disc", version: 1},
	}))

	_, err := reg.OpenFabric(&FabricAttr{Name: "fab", ProvName: "disc"}, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOpenFabric_ProviderErrorIsUnmodified(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p := &mockProvider{name: "quic", version: 1}
	attr := &FabricAttr{Name: "fab", ProvName: "quic"}
	perr := &ProviderError{Provider: "quic", Op: "fabric", Code: -12}

	p.m.On("OpenFabric", attr, nil).Return(nil, perr).Once()
	require.NoError(t, reg.Register(p))

	fabric, err := reg.OpenFabric(attr, nil)
	require.Same(t, perr, err)
	require.Nil(t, fabric)
	require.NotErrorIs(t, err, ErrNotFound)
	p.m.AssertExpectations(t)
}

func TestOpenFabric_Success(t *testing.T) {
	reg, sink := newTestRegistry(t)
	p := &mockProvider{name: "quic", version: 1}
	attr := &FabricAttr{Name: "fab", ProvName: "quic", ProvVersion: 1}
	userCtx := struct{ id int }{id: 7}
	fab := &testFabric{name: "fab"}

	p.m.On("OpenFabric", attr, userCtx).Return(fab, nil).Once()
	require.NoError(t, reg.Register(p))

	fabric, err := reg.OpenFabric(attr, userCtx)
	require.NoError(t, err)
	require.Same(t, fab, fabric)
	require.Equal(t, 1, counter(t, sink, "kfi.fabric.open.count;provider=quic"))
	p.m.AssertExpectations(t)

	require.NoError(t, fabric.Close())
	require.True(t, fab.closed)
}

func TestOpenFabric_RoundTripFromDiscovery(t *testing.T) {
	reg, _ := newTestRegistry(t)
	p := &mockProvider{name: "quic", version: Version(1, 0)}
	p.m.On("GetInfo", APIVersion, (*Info)(nil)).Return(NewChain(namedInfo("fab")), nil)
	p.m.On("OpenFabric", mock.MatchedBy(func(attr *FabricAttr) bool {
		return attr.Name == "fab" && attr.ProvName == "quic" && attr.ProvVersion == Version(1, 0)
	}), nil).Return(&testFabric{name: "fab"}, nil).Once()
	require.NoError(t, reg.Register(p))

	chain, err := reg.GetInfo(APIVersion, nil)
	require.NoError(t, err)
	defer FreeInfo(chain)

	fabric, err := reg.OpenFabric(chain.At(0).FabricAttr, nil)
	require.NoError(t, err)
	require.Equal(t, "fab", fabric.Name())
	p.m.AssertExpectations(t)
}
