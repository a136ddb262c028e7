package kfi

import (
	"fmt"
	"net/netip"
	"strings"
)

// Version packs an API or provider version the same way on both sides of
// the registry: the major number in the high 16 bits.
func Version(major, minor uint16) uint32 {
	return uint32(major)<<16 | uint32(minor)
}

func MajorVersion(version uint32) uint16 {
	return uint16(version >> 16)
}

func MinorVersion(version uint32) uint16 {
	return uint16(version & 0xFFFF)
}

// APIVersion is the interface version callers pass to `GetInfo` when
// they have no specific requirement.
var APIVersion = Version(1, 0)

// Caps are capability and operation flags shared by `Info`, `TxAttr` and
// `RxAttr`.
type Caps uint64

const (
	CapMsg Caps = 1 << (iota + 1)
	CapRMA
	CapTagged
	CapAtomic
)

const (
	CapRead Caps = 1 << (iota + 8)
	CapWrite
	CapRecv
	CapSend
	CapRemoteRead
	CapRemoteWrite
)

var capNames = []struct {
	cap  Caps
	name string
}{
	{CapMsg, "msg"},
	{CapRMA, "rma"},
	{CapTagged, "tagged"},
	{CapAtomic, "atomic"},
	{CapRead, "read"},
	{CapWrite, "write"},
	{CapRecv, "recv"},
	{CapSend, "send"},
	{CapRemoteRead, "remote_read"},
	{CapRemoteWrite, "remote_write"},
}

// Has reports whether every bit of want is set.
func (c Caps) Has(want Caps) bool {
	return c&want == want
}

func (c Caps) String() string {
	var names []string
	rest := c
	for _, cn := range capNames {
		if c&cn.cap != 0 {
			names = append(names, cn.name)
			rest &^= cn.cap
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint64(rest)))
	}
	return strings.Join(names, "|")
}

// ParseCaps accepts the `String` form, e.g. "msg|send|recv".
func ParseCaps(s string) (Caps, error) {
	var caps Caps
	if s == "" {
		return caps, nil
	}
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(strings.ToLower(part))
		found := false
		for _, cn := range capNames {
			if cn.name == part {
				caps |= cn.cap
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown capability %q", ErrInvalidArgument, part)
		}
	}
	return caps, nil
}

// AddrFormat tags the encoding of `Info.SrcAddr` and `Info.DestAddr`.
type AddrFormat uint32

const (
	AddrUnspec AddrFormat = iota
	AddrSockaddr
	AddrSockaddrIn
	AddrSockaddrIn6
	AddrSockaddrIB
	AddrString
)

func (f AddrFormat) String() string {
	switch f {
	case AddrSockaddr:
		return "sockaddr"
	case AddrSockaddrIn:
		return "sockaddr_in"
	case AddrSockaddrIn6:
		return "sockaddr_in6"
	case AddrSockaddrIB:
		return "sockaddr_ib"
	case AddrString:
		return "string"
	default:
		return "unspec"
	}
}

// AddrFormatOf picks the IP-family specific format for an address.
func AddrFormatOf(addr netip.AddrPort) AddrFormat {
	if addr.Addr().Unmap().Is4() {
		return AddrSockaddrIn
	}
	return AddrSockaddrIn6
}

// EncodeAddr encodes an IP address and port into the opaque form stored in
// `Info` address buffers.
func EncodeAddr(addr netip.AddrPort) []byte {
	buf, _ := addr.MarshalBinary()
	return buf
}

// FormatAddr renders an address buffer for humans. Formats it does not
// know are shown as hex.
func FormatAddr(format AddrFormat, buf []byte) string {
	if buf == nil {
		return ""
	}
	switch format {
	case AddrSockaddrIn, AddrSockaddrIn6, AddrSockaddr:
		var ap netip.AddrPort
		if err := ap.UnmarshalBinary(buf); err == nil {
			return ap.String()
		}
	case AddrString:
		return string(buf)
	}
	return fmt.Sprintf("%x", buf)
}

type Threading uint8

const (
	ThreadUnspec Threading = iota
	ThreadSafe
	ThreadFID
	ThreadDomain
	ThreadCompletion
	ThreadEndpoint
)

func (t Threading) String() string {
	switch t {
	case ThreadSafe:
		return "safe"
	case ThreadFID:
		return "fid"
	case ThreadDomain:
		return "domain"
	case ThreadCompletion:
		return "completion"
	case ThreadEndpoint:
		return "endpoint"
	default:
		return "unspec"
	}
}

type Progress uint8

const (
	ProgressUnspec Progress = iota
	ProgressAuto
	ProgressManual
)

func (p Progress) String() string {
	switch p {
	case ProgressAuto:
		return "auto"
	case ProgressManual:
		return "manual"
	default:
		return "unspec"
	}
}

type ResourceMgmt uint8

const (
	RMUnspec ResourceMgmt = iota
	RMDisabled
	RMEnabled
)

func (rm ResourceMgmt) String() string {
	switch rm {
	case RMDisabled:
		return "disabled"
	case RMEnabled:
		return "enabled"
	default:
		return "unspec"
	}
}

type AVType uint8

const (
	AVUnspec AVType = iota
	AVMap
	AVTable
)

func (av AVType) String() string {
	switch av {
	case AVMap:
		return "map"
	case AVTable:
		return "table"
	default:
		return "unspec"
	}
}

type MRMode uint8

const (
	MRUnspec MRMode = iota
	MRBasic
	MRScalable
)

func (mr MRMode) String() string {
	switch mr {
	case MRBasic:
		return "basic"
	case MRScalable:
		return "scalable"
	default:
		return "unspec"
	}
}

// Protocol identifies the wire protocol of an endpoint.
type Protocol uint32

const (
	ProtoUnspec Protocol = iota
	ProtoRDMACMIBRC
	ProtoIWARP
	ProtoIBUD
	ProtoSockTCP
	ProtoQUIC
	ProtoGossip
)

func (p Protocol) String() string {
	switch p {
	case ProtoRDMACMIBRC:
		return "rdma_cm_ib_rc"
	case ProtoIWARP:
		return "iwarp"
	case ProtoIBUD:
		return "ib_ud"
	case ProtoSockTCP:
		return "sock_tcp"
	case ProtoQUIC:
		return "quic"
	case ProtoGossip:
		return "gossip"
	default:
		return "unspec"
	}
}
