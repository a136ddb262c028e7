package kfi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// The default registry lives for the whole test binary, so these tests
// never shut it down and clean up what they register.
func TestDefaultRegistry(t *testing.T) {
	require.Same(t, Default(), Default())

	p := &discoveryProvider{
		stubProvider: stubProvider{name: "default-test", version: 1},
		infos:        []*Info{namedInfo("d")},
	}
	require.NoError(t, Register(p))
	t.Cleanup(func() { Deregister(p) })

	chain, err := GetInfo(APIVersion, &Info{FabricAttr: &FabricAttr{ProvName: "default-test"}})
	require.NoError(t, err)
	defer FreeInfo(chain)
	require.Equal(t, "default-test", chain.At(0).FabricAttr.ProvName)

	_, err = OpenFabric(chain.At(0).FabricAttr, nil)
	require.ErrorIs(t, err, ErrNotFound, "the provider cannot open fabrics")
}

func TestMustRegisterPanics(t *testing.T) {
	require.Panics(t, func() {
		MustRegister(&stubProvider{})
	})
}
