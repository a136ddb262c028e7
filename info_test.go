package kfi

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocInfo(t *testing.T) {
	info := AllocInfo()
	require.NoError(t, info.Validate())
	require.NotNil(t, info.TxAttr)
	require.NotNil(t, info.RxAttr)
	require.NotNil(t, info.EpAttr)
	require.NotNil(t, info.DomainAttr)
	require.NotNil(t, info.FabricAttr)
	require.Nil(t, info.SrcAddr)
	require.Nil(t, info.DestAddr)
	require.Zero(t, info.Caps)
}

func TestInfo_Validate(t *testing.T) {
	var nilInfo *Info
	require.ErrorIs(t, nilInfo.Validate(), ErrIncompleteInfo)

	strip := []func(*Info){
		func(i *Info) { i.TxAttr = nil },
		func(i *Info) { i.RxAttr = nil },
		func(i *Info) { i.EpAttr = nil },
		func(i *Info) { i.DomainAttr = nil },
		func(i *Info) { i.FabricAttr = nil },
	}
	for _, fn := range strip {
		info := AllocInfo()
		fn(info)
		require.ErrorIs(t, info.Validate(), ErrIncompleteInfo)
	}
}

func TestInfo_Clone(t *testing.T) {
	info := namedInfo("fab")
	info.SrcAddr = []byte{1, 2, 3}
	info.DomainAttr.Name = "dom"

	cloned := info.Clone()
	require.Equal(t, info, cloned)

	cloned.SrcAddr[0] = 9
	cloned.FabricAttr.Name = "other"
	cloned.DomainAttr.Name = "other"
	require.Equal(t, byte(1), info.SrcAddr[0])
	require.Equal(t, "fab", info.FabricAttr.Name)
	require.Equal(t, "dom", info.DomainAttr.Name)

	var nilInfo *Info
	require.Nil(t, nilInfo.Clone())
}

func TestInfo_Satisfies(t *testing.T) {
	info := namedInfo("fab")
	info.AddrFormat = AddrSockaddrIn
	info.EpAttr.Protocol = ProtoQUIC
	info.DomainAttr.Name = "udp"

	tests := []struct {
		name  string
		hints *Info
		want  bool
	}{
		{name: "nil hints", hints: nil, want: true},
		{name: "empty hints", hints: &Info{}, want: true},
		{name: "subset of caps", hints: &Info{Caps: CapMsg | CapSend}, want: true},
		{name: "missing cap", hints: &Info{Caps: CapRMA}, want: false},
		{name: "same address format", hints: &Info{AddrFormat: AddrSockaddrIn}, want: true},
		{name: "other address format", hints: &Info{AddrFormat: AddrSockaddrIn6}, want: false},
		{name: "same protocol", hints: &Info{EpAttr: &EpAttr{Protocol: ProtoQUIC}}, want: true},
		{name: "other protocol", hints: &Info{EpAttr: &EpAttr{Protocol: ProtoSockTCP}}, want: false},
		{name: "domain name", hints: &Info{DomainAttr: &DomainAttr{Name: "udp"}}, want: true},
		{name: "other domain name", hints: &Info{DomainAttr: &DomainAttr{Name: "ib0"}}, want: false},
		{name: "fabric name", hints: &Info{FabricAttr: &FabricAttr{Name: "fab"}}, want: true},
		{name: "other fabric name", hints: &Info{FabricAttr: &FabricAttr{Name: "nope"}}, want: false},
		{name: "provider name is not a record constraint", hints: &Info{FabricAttr: &FabricAttr{ProvName: "x"}}, want: true},
		{name: "mode bits", hints: &Info{Mode: 1}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, info.Satisfies(tc.hints))
		})
	}
}

func TestChain_AppendSplices(t *testing.T) {
	a1, a2, b1 := namedInfo("a1"), namedInfo("a2"), namedInfo("b1")
	a := NewChain(a1, a2)
	b := NewChain(b1)

	a.Append(b)
	require.Equal(t, 3, a.Len())
	require.Equal(t, 0, b.Len(), "the spliced chain must be emptied")
	require.Same(t, a1, a.At(0))
	require.Same(t, b1, a.At(2))

	a.Append(nil)
	a.Append(a)
	require.Equal(t, 3, a.Len())

	infos := a.Infos()
	infos[0] = nil
	require.NotNil(t, a.At(0), "Infos must return a copy of the list")
}

func TestChain_AllStopsEarly(t *testing.T) {
	chain := NewChain(namedInfo("a"), namedInfo("b"), namedInfo("c"))
	var seen []string
	for i, info := range chain.All() {
		seen = append(seen, info.FabricAttr.Name)
		if i == 1 {
			break
		}
	}
	require.Equal(t, []string{"a", "b"}, seen)
}

func TestChain_Release(t *testing.T) {
	info := namedInfo("a")
	info.SrcAddr = []byte{1}
	chain := NewChain(info, namedInfo("b"))

	FreeInfo(chain)
	require.Equal(t, 0, chain.Len())
	require.Nil(t, info.FabricAttr)
	require.Nil(t, info.SrcAddr)

	require.NotPanics(t, func() {
		FreeInfo(chain)
		FreeInfo(nil)
		NewChain(nil).Release()
	})
}

func TestVersion(t *testing.T) {
	v := Version(2, 7)
	require.Equal(t, uint32(0x00020007), v)
	require.Equal(t, uint16(2), MajorVersion(v))
	require.Equal(t, uint16(7), MinorVersion(v))
	require.Greater(t, Version(2, 0), Version(1, 0xFFFF))
}

func TestCaps(t *testing.T) {
	caps := CapMsg | CapSend | CapRecv
	require.Equal(t, "msg|recv|send", caps.String())
	require.True(t, caps.Has(CapMsg|CapSend))
	require.False(t, caps.Has(CapRMA))

	parsed, err := ParseCaps("MSG| send |recv")
	require.NoError(t, err)
	require.Equal(t, caps, parsed)

	parsed, err = ParseCaps("")
	require.NoError(t, err)
	require.Zero(t, parsed)

	_, err = ParseCaps("msg|teleport")
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.Equal(t, "msg|0x1", (CapMsg | 1).String())
}

func TestAddrEncoding(t *testing.T) {
	v4 := netip.MustParseAddrPort("10.0.0.1:7000")
	v6 := netip.MustParseAddrPort("[fd00::1]:7000")

	require.Equal(t, AddrSockaddrIn, AddrFormatOf(v4))
	require.Equal(t, AddrSockaddrIn6, AddrFormatOf(v6))

	require.Equal(t, "10.0.0.1:7000", FormatAddr(AddrSockaddrIn, EncodeAddr(v4)))
	require.Equal(t, "[fd00::1]:7000", FormatAddr(AddrSockaddrIn6, EncodeAddr(v6)))
	require.Equal(t, "node-1", FormatAddr(AddrString, []byte("node-1")))
	require.Equal(t, "0102", FormatAddr(AddrSockaddrIB, []byte{1, 2}))
	require.Equal(t, "", FormatAddr(AddrSockaddrIn, nil))
}
