package guest

import (
	"fmt"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// Entry a guest entry point, it receives the encoded invocation arguments and
// returns the bytes the invocation produces
type Entry func(env *Env, args []byte) []byte

// AccumulateArgs E(t, s, ↕o)
type AccumulateArgs struct {
	Timeslot  uint32 `jam:"encoding=compact"`
	ServiceId uint32 `jam:"encoding=compact"`
	Operands  uint32 `jam:"encoding=compact"`
}

// OnTransferArgs E(t, s, ↕t), the transfers themselves are fetched as items
type OnTransferArgs struct {
	Timeslot  uint32 `jam:"encoding=compact"`
	ServiceId uint32 `jam:"encoding=compact"`
	Transfers uint32 `jam:"encoding=compact"`
}

// RefineArgs E(c, i, ws, ↕wy, H(p))
type RefineArgs struct {
	Core        uint16 `jam:"encoding=compact"`
	Item        uint32 `jam:"encoding=compact"`
	ServiceId   uint32 `jam:"encoding=compact"`
	Payload     []byte
	PackageHash Hash
}

// Service the entry points of a service
type Service interface {
	Refine(env *Env, args RefineArgs) []byte
	// Accumulate may return a hash to report as the accumulation result
	Accumulate(env *Env, args AccumulateArgs) *Hash
	OnTransfer(env *Env, args OnTransferArgs)
}

// Authorizer the entry point of an authorizer, it returns the authorization trace
type Authorizer interface {
	IsAuthorized(env *Env, core uint16) []byte
}

func decodeArgs[T any](args []byte) T {
	var v T
	if err := jam.Unmarshal(args, &v); err != nil {
		panic(fmt.Sprintf("decoding %T: %v", v, err))
	}
	return v
}

func RefineEntry(s Service) Entry {
	return func(env *Env, args []byte) []byte {
		return s.Refine(env, decodeArgs[RefineArgs](args))
	}
}

func AccumulateEntry(s Service) Entry {
	return func(env *Env, args []byte) []byte {
		if h := s.Accumulate(env, decodeArgs[AccumulateArgs](args)); h != nil {
			return h[:]
		}
		return nil
	}
}

func OnTransferEntry(s Service) Entry {
	return func(env *Env, args []byte) []byte {
		s.OnTransfer(env, decodeArgs[OnTransferArgs](args))
		return nil
	}
}

// IsAuthorizedEntry the arguments are E2(c)
func IsAuthorizedEntry(a Authorizer) Entry {
	return func(env *Env, args []byte) []byte {
		if len(args) != 2 {
			panic(fmt.Sprintf("is authorized arguments of %d bytes", len(args)))
		}
		return a.IsAuthorized(env, uint16(jam.DecodeUint64(args)))
	}
}

// IncomingTransfer a deferred transfer as delivered to its receiver, E4(s) ⌢ E4(d) ⌢ E8(a) ⌢ m ⌢ E8(g)
type IncomingTransfer struct {
	Sender   uint32
	Receiver uint32
	Amount   uint64
	Memo     Memo
	GasLimit uint64
}

// IncomingTransfer the index-th transfer of an on-transfer invocation
func (e *Env) IncomingTransfer(index uint64) (IncomingTransfer, bool) {
	b, ok := e.Item(index)
	if !ok {
		return IncomingTransfer{}, false
	}
	return decodeArgs[IncomingTransfer](b), true
}
