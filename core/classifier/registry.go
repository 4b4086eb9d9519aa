// Package classifier implements the classifier dispatch contract (spec
// §4.1): given a node's call-data selector or log topics, produce zero or
// more normalized actions, via a static (protocol_id, selector) registry
// resolved through the address→protocol_info table.
package classifier

import (
	"github.com/ethereum/go-ethereum/crypto"

	"brontes/core/actions"
	"brontes/core/tree"
)

// ProtocolID names a supported protocol family (e.g. "uniswap-v2").
type ProtocolID string

// Selector is a 4-byte function selector (first 4 bytes of a call's
// calldata, or keccak(signature)[:4]).
type Selector [4]byte

// Topic0 is the first indexed log topic, identifying the event type.
type Topic0 = actions.Hash

// CallInput is everything a constructor needs to decode one call frame
// (spec §4.1 "Constructors receive...").
type CallInput struct {
	TraceIndex int
	From       actions.Address
	Target     actions.Address
	MsgSender  actions.Address
	Calldata   []byte
	Logs       []DecodedLog
	DB         TokenDB
}

// DecodedLog is one event log attached to the call frame.
type DecodedLog struct {
	Address actions.Address
	Topics  []Topic0
	Data    []byte
}

// TokenDB is the read-only lookup handle constructors use for
// token/decimals/pool data (spec §4.1). It is satisfied by
// core/store.LocalKV.
type TokenDB interface {
	Decimals(token actions.Address) (uint8, bool)
	ProtocolOf(addr actions.Address) (ProtocolInfo, bool)
}

// ProtocolInfo is the address→protocol row the registry resolves against.
type ProtocolInfo struct {
	Protocol  ProtocolID
	InitBlock uint64
}

// Constructor builds zero or one Action from a call frame. Returning
// (Action{}, false) means "not my concern, try the next rule" (spec §4.1).
type Constructor func(in CallInput) (actions.Action, bool)

// EventDecoder builds zero or one Action from a decoded log. Returning
// false means "not my concern".
type EventDecoder func(in CallInput, logIdx int) (actions.Action, bool)

type selectorKey struct {
	protocol ProtocolID
	selector Selector
}

type topicKey struct {
	protocol ProtocolID
	topic0   Topic0
}

// Registry is the static (protocol_id, selector) → constructor and
// (protocol_id, topic0) → decoder lookup table (spec §4.1 "Mechanism").
// It is built once at startup (RegisterAll) and read concurrently by every
// classification call thereafter — no locking is needed because
// registration happens before the registry is shared.
type Registry struct {
	bySelector map[selectorKey]Constructor
	byTopic    map[topicKey]EventDecoder
	generic    Constructor
}

// NewRegistry returns an empty registry. Call RegisterSelector/
// RegisterTopic (directly or via RegisterAll) before using it to Classify.
func NewRegistry() *Registry {
	return &Registry{
		bySelector: make(map[selectorKey]Constructor),
		byTopic:    make(map[topicKey]EventDecoder),
		generic:    GenericERC20Decoder,
	}
}

// RegisterSelector installs a call-data constructor for (protocol, selector).
func (r *Registry) RegisterSelector(protocol ProtocolID, selector Selector, c Constructor) {
	r.bySelector[selectorKey{protocol, selector}] = c
}

// RegisterTopic installs a log decoder for (protocol, topic0).
func (r *Registry) RegisterTopic(protocol ProtocolID, topic Topic0, d EventDecoder) {
	r.byTopic[topicKey{protocol, topic}] = d
}

// Selector4 computes the 4-byte function selector for a Solidity-style
// signature, e.g. "swap(uint256,uint256,address,bytes)".
func Selector4(signature string) Selector {
	h := crypto.Keccak256([]byte(signature))
	var s Selector
	copy(s[:], h[:4])
	return s
}

// Topic0Of computes the keccak256 topic0 for an event signature, e.g.
// "Swap(address,address,uint256,uint256,uint256,uint256,address)".
func Topic0Of(signature string) Topic0 {
	return actions.Hash(crypto.Keccak256Hash([]byte(signature)))
}

func selectorOf(calldata []byte) (Selector, bool) {
	if len(calldata) < 4 {
		return Selector{}, false
	}
	var s Selector
	copy(s[:], calldata[:4])
	return s, true
}

// Classify runs dispatch for one call frame (spec §4.1 "Contract"): it
// resolves the frame's protocol via TokenDB, tries the matching selector
// constructor, then every registered topic decoder for the frame's logs,
// and falls back to the generic ERC-20 decoder for unknown addresses.
// currentBlock gates protocols whose init_block has not yet been reached
// (spec §4.1 "Addresses whose protocol_info init_block is greater than the
// current block are ignored").
func (r *Registry) Classify(in CallInput, currentBlock uint64) []actions.Action {
	var out []actions.Action

	protocol, known := in.DB.ProtocolOf(in.Target)
	if known && protocol.InitBlock > currentBlock {
		return nil
	}

	if known {
		if sel, ok := selectorOf(in.Calldata); ok {
			if c, ok := r.bySelector[selectorKey{protocol.Protocol, sel}]; ok {
				if a, ok := c(in); ok {
					out = append(out, a)
				}
			}
		}
		for li, lg := range in.Logs {
			if len(lg.Topics) == 0 {
				continue
			}
			if d, ok := r.byTopic[topicKey{protocol.Protocol, lg.Topics[0]}]; ok {
				if a, ok := d(in, li); ok {
					out = append(out, a)
				}
			}
		}
		return out
	}

	// Unknown address: dispatch to the generic decoder, which only
	// recognizes standard ERC-20 Transfer/Approval topics (spec §4.1).
	if a, ok := r.generic(in); ok {
		out = append(out, a)
	}
	return out
}

// AttachTo runs Classify for a tree node and attaches the first resulting
// action to it (a node carries at most one decoded Action per spec §3.2;
// additional matches beyond the first are logged and dropped by the
// caller's discretion — in practice at most one constructor and one topic
// decoder fire for any given well-formed call).
func (r *Registry) AttachTo(n *tree.Node, in CallInput, currentBlock uint64) {
	acts := r.Classify(in, currentBlock)
	if len(acts) == 0 {
		n.Action = &actions.Action{TraceIndex: in.TraceIndex, Data: actions.Unclassified{
			Target:  in.Target,
			HasLogs: len(in.Logs) > 0,
		}}
		if sel, ok := selectorOf(in.Calldata); ok {
			u := n.Action.Data.(actions.Unclassified)
			u.Selector = sel
			n.Action.Data = u
		}
		return
	}
	n.Action = &acts[0]
}
