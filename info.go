package kfi

import (
	"iter"
	"slices"
)

type TxAttr struct {
	Caps        Caps
	Mode        uint64
	OpFlags     uint64
	MsgOrder    uint64
	CompOrder   uint64
	InjectSize  uint64
	Size        uint64
	IOVLimit    uint64
	RMAIOVLimit uint64
}

type RxAttr struct {
	Caps              Caps
	Mode              uint64
	OpFlags           uint64
	MsgOrder          uint64
	CompOrder         uint64
	TotalBufferedRecv uint64
	Size              uint64
	IOVLimit          uint64
}

type EpAttr struct {
	Protocol        Protocol
	ProtocolVersion uint32
	MaxMsgSize      uint64
	MsgPrefixSize   uint64
	MaxOrderRAWSize uint64
	MaxOrderWARSize uint64
	MaxOrderWAWSize uint64
	MemTagFormat    uint64
	TxCtxCnt        uint64
	RxCtxCnt        uint64
}

type DomainAttr struct {
	Name            string
	Threading       Threading
	ControlProgress Progress
	DataProgress    Progress
	ResourceMgmt    ResourceMgmt
	AVType          AVType
	MRMode          MRMode
	MRKeySize       uint64
	CQDataSize      uint64
	CQCnt           uint64
	EPCnt           uint64
	TxCtxCnt        uint64
	RxCtxCnt        uint64
	MaxEPTxCtx      uint64
	MaxEPRxCtx      uint64
	MaxEPSTxCtx     uint64
	MaxEPSRxCtx     uint64
}

// FabricAttr names a fabric and the provider serving it.
//
// `ProvName` and `ProvVersion` are stamped by the registry during
// discovery; whatever a provider writes there is overwritten.
// `ProvName` is also the lookup key of `Registry.OpenFabric`.
type FabricAttr struct {
	Name        string
	ProvName    string
	ProvVersion uint32
}

// Info describes one fabric endpoint configuration a provider can serve.
//
// An Info is only valid when its five attribute bundles are present, see
// `Validate`. Records are owned by exactly one `Chain` at a time.
type Info struct {
	Caps       Caps
	Mode       uint64
	AddrFormat AddrFormat

	// SrcAddr and DestAddr are opaque buffers interpreted according to
	// `AddrFormat`. A nil buffer means the address is absent.
	SrcAddr  []byte
	DestAddr []byte

	TxAttr     *TxAttr
	RxAttr     *RxAttr
	EpAttr     *EpAttr
	DomainAttr *DomainAttr
	FabricAttr *FabricAttr
}

// AllocInfo returns a record with all its attribute bundles allocated.
func AllocInfo() *Info {
	return &Info{
		TxAttr:     &TxAttr{},
		RxAttr:     &RxAttr{},
		EpAttr:     &EpAttr{},
		DomainAttr: &DomainAttr{},
		FabricAttr: &FabricAttr{},
	}
}

// Validate rejects partially built records.
func (info *Info) Validate() error {
	if info == nil || info.TxAttr == nil || info.RxAttr == nil || info.EpAttr == nil ||
		info.DomainAttr == nil || info.FabricAttr == nil {
		return ErrIncompleteInfo
	}
	return nil
}

// Clone deep-copies a record, including address buffers.
func (info *Info) Clone() *Info {
	if info == nil {
		return nil
	}
	cloned := *info
	cloned.SrcAddr = slices.Clone(info.SrcAddr)
	cloned.DestAddr = slices.Clone(info.DestAddr)
	if info.TxAttr != nil {
		tx := *info.TxAttr
		cloned.TxAttr = &tx
	}
	if info.RxAttr != nil {
		rx := *info.RxAttr
		cloned.RxAttr = &rx
	}
	if info.EpAttr != nil {
		ep := *info.EpAttr
		cloned.EpAttr = &ep
	}
	if info.DomainAttr != nil {
		dom := *info.DomainAttr
		cloned.DomainAttr = &dom
	}
	if info.FabricAttr != nil {
		fab := *info.FabricAttr
		cloned.FabricAttr = &fab
	}
	return &cloned
}

// Satisfies reports whether the record fulfils every constraint set in
// hints. Zero values in hints are wildcards, and a nil hints matches
// everything. Providers use it to filter their discovery results.
func (info *Info) Satisfies(hints *Info) bool {
	if hints == nil {
		return true
	}
	if info == nil {
		return false
	}
	if !info.Caps.Has(hints.Caps) {
		return false
	}
	if info.Mode&hints.Mode != hints.Mode {
		return false
	}
	if hints.AddrFormat != AddrUnspec && info.AddrFormat != hints.AddrFormat {
		return false
	}
	if hints.EpAttr != nil && hints.EpAttr.Protocol != ProtoUnspec {
		if info.EpAttr == nil || info.EpAttr.Protocol != hints.EpAttr.Protocol {
			return false
		}
	}
	if hints.DomainAttr != nil && hints.DomainAttr.Name != "" {
		if info.DomainAttr == nil || info.DomainAttr.Name != hints.DomainAttr.Name {
			return false
		}
	}
	if hints.FabricAttr != nil && hints.FabricAttr.Name != "" {
		if info.FabricAttr == nil || info.FabricAttr.Name != hints.FabricAttr.Name {
			return false
		}
	}
	return true
}

func (info *Info) release() {
	info.TxAttr = nil
	info.RxAttr = nil
	info.EpAttr = nil
	info.DomainAttr = nil
	info.FabricAttr = nil
	info.SrcAddr = nil
	info.DestAddr = nil
}

// Chain is an ordered list of `Info` records owning its elements.
//
// Ownership moves with `Append`: the spliced chain is emptied. Records
// must not be shared between chains.
type Chain struct {
	infos []*Info
}

func NewChain(infos ...*Info) *Chain {
	return &Chain{infos: infos}
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.infos)
}

func (c *Chain) At(i int) *Info {
	return c.infos[i]
}

// All iterates the records in chain order.
func (c *Chain) All() iter.Seq2[int, *Info] {
	return func(yield func(int, *Info) bool) {
		if c == nil {
			return
		}
		for i, info := range c.infos {
			if !yield(i, info) {
				return
			}
		}
	}
}

// Infos returns a copy of the record list. The records themselves are
// still owned by the chain.
func (c *Chain) Infos() []*Info {
	if c == nil {
		return nil
	}
	return slices.Clone(c.infos)
}

// Push appends a single record.
func (c *Chain) Push(info *Info) {
	c.infos = append(c.infos, info)
}

// Append splices every record of other at the tail of c, preserving
// their order, and leaves other empty.
func (c *Chain) Append(other *Chain) {
	if other == nil || other == c {
		return
	}
	c.infos = append(c.infos, other.infos...)
	other.infos = nil
}

// Release frees every record, in order, attribute bundles first.
// The chain is empty afterwards so releasing it again is a no-op.
func (c *Chain) Release() {
	if c == nil {
		return
	}
	for i, info := range c.infos {
		if info != nil {
			info.release()
		}
		c.infos[i] = nil
	}
	c.infos = nil
}

// FreeInfo releases a chain returned by `GetInfo` or built with
// `AllocInfo`. It accepts nil.
func FreeInfo(chain *Chain) {
	chain.Release()
}
