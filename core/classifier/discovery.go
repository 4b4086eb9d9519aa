package classifier

import (
	"brontes/core/actions"
	"brontes/core/tree"
)

// FactorySignature pairs a factory contract address with the create
// selector(s) it dispatches a new pool/protocol deployment through (spec
// §4.1 Discovery: "a parallel pass watches for factory-create events
// (CREATE/CREATE2) and specific factory selectors").
type FactorySignature struct {
	Factory  actions.Address
	Selector Selector
	Protocol ProtocolID
}

// ProtocolRegistrar is the write side of the address→protocol_info table
// (spec §4.1 "adds a row to the address→protocol_info table"). Satisfied
// by core/store.LocalKV.
type ProtocolRegistrar interface {
	RegisterProtocol(addr actions.Address, info ProtocolInfo)
	ScheduleDecimalsLookup(token actions.Address)
}

// Discoverer runs the discovery pass over a single transaction tree,
// emitting NewPool actions and registering freshly created pools so they
// become classifiable within the same block (spec §4.1 "Discovered pools
// become classifiable in the same block").
type Discoverer struct {
	signatures []FactorySignature
	registrar  ProtocolRegistrar
	blockNum   uint64
}

// NewDiscoverer builds a Discoverer for the given factory signatures,
// registering newly discovered pools at blockNum.
func NewDiscoverer(sigs []FactorySignature, reg ProtocolRegistrar, blockNum uint64) *Discoverer {
	return &Discoverer{signatures: sigs, registrar: reg, blockNum: blockNum}
}

// Run scans t for CREATE/CREATE2 frames issued by a registered factory
// address and emits a NewPool action on the create frame itself (the
// frame's msg_sender is the factory that issued the CREATE), then
// registers the new address so later classifier passes in the same block
// can resolve it.
func (d *Discoverer) Run(t *tree.TransactionTree) {
	for _, n := range t.Nodes() {
		if n.CallType != tree.CallTypeCreate && n.CallType != tree.CallTypeCreate2 {
			continue
		}
		for _, sig := range d.signatures {
			if n.MsgSender != sig.Factory {
				continue
			}
			n.Action = &actions.Action{TraceIndex: n.TraceIndex, Data: actions.NewPool{
				Pool:     n.Callee,
				Protocol: string(sig.Protocol),
			}}
			d.registrar.RegisterProtocol(n.Callee, ProtocolInfo{Protocol: sig.Protocol, InitBlock: d.blockNum})
			d.registrar.ScheduleDecimalsLookup(n.Callee)
			break
		}
	}
	t.PropagateKinds()
}
