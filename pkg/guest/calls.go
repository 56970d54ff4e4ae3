package guest

import (
	"fmt"
	"math"

	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

// Hash a 32 octet blake2b digest
type Hash [32]byte

// Memo the fixed size note attached to a transfer
type Memo [128]byte

// serviceArg nil names the calling service
func serviceArg(service *uint32) uint64 {
	if service == nil {
		return math.MaxUint64
	}
	return uint64(*service)
}

// Gas returns the gas left after the call itself is charged
func (e *Env) Gas() uint64 {
	r, _ := e.call(gasCall)
	return uint64(r)
}

// Lookup the preimage of hash held by a service, nil service is the caller
func (e *Env) Lookup(service *uint32, hash Hash) ([]byte, bool) {
	return e.fetchVariable([][]byte{hash[:]}, func(in []uint32, out uint32, length uint64) ReturnCode {
		r, _ := e.call(lookupCall, serviceArg(service), uint64(in[0]), uint64(out), 0, length)
		return r
	})
}

// HistoricalLookup the preimage of hash as it was available at the lookup anchor, refine only
func (e *Env) HistoricalLookup(service *uint32, hash Hash) ([]byte, bool) {
	return e.fetchVariable([][]byte{hash[:]}, func(in []uint32, out uint32, length uint64) ReturnCode {
		r, _ := e.call(historicalLookupCall, serviceArg(service), uint64(in[0]), uint64(out), 0, length)
		return r
	})
}

// IsAvailable reports whether a service holds the preimage of hash without copying it
func (e *Env) IsAvailable(service *uint32, hash Hash) bool {
	in, _ := e.staged(0, hash[:])
	r, _ := e.call(lookupCall, serviceArg(service), uint64(in[0]), 0, 0, 0)
	return r != NONE
}

// IsHistoricalAvailable reports whether the preimage of hash was available at the lookup anchor, refine only
func (e *Env) IsHistoricalAvailable(service *uint32, hash Hash) bool {
	in, _ := e.staged(0, hash[:])
	r, _ := e.call(historicalLookupCall, serviceArg(service), uint64(in[0]), 0, 0, 0)
	return r != NONE
}

// Read a storage value of a service, nil service is the caller
func (e *Env) Read(service *uint32, key []byte) ([]byte, bool) {
	return e.fetchVariable([][]byte{key}, func(in []uint32, out uint32, length uint64) ReturnCode {
		r, _ := e.call(readCall, serviceArg(service), uint64(in[0]), uint64(len(key)), uint64(out), 0, length)
		return r
	})
}

// Write sets key to value, an empty value removes the key. It returns the length of
// the previous value when there was one.
func (e *Env) Write(key, value []byte) (uint32, bool, error) {
	in, _ := e.staged(0, key, value)
	r, _ := e.call(writeCall, uint64(in[0]), uint64(len(key)), uint64(in[1]), uint64(len(value)))
	old, existed, err := r.IntoOptionResult()
	if err != nil || !existed {
		return 0, existed, err
	}
	return narrow(old), true, nil
}

func (e *Env) Remove(key []byte) (uint32, bool, error) {
	return e.Write(key, nil)
}

// ServiceInfo the account summary returned by info
type ServiceInfo struct {
	CodeHash   Hash
	Balance    uint64 `jam:"encoding=compact"`
	Threshold  uint64 `jam:"encoding=compact"`
	MinItemGas uint64 `jam:"encoding=compact"`
	MinMemoGas uint64 `jam:"encoding=compact"`
	Bytes      uint64 `jam:"encoding=compact"`
	Items      uint32 `jam:"encoding=compact"`
}

// Info the account summary of a service, nil service is the caller
func (e *Env) Info(service *uint32) (ServiceInfo, bool) {
	b, ok := e.fetchVariable(nil, func(_ []uint32, out uint32, length uint64) ReturnCode {
		r, _ := e.call(infoCall, serviceArg(service), uint64(out), 0, length)
		return r
	})
	if !ok {
		return ServiceInfo{}, false
	}
	info := ServiceInfo{}
	if err := jam.Unmarshal(b, &info); err != nil {
		panic(fmt.Sprintf("decoding service info: %v", err))
	}
	return info, true
}

// Fetch kinds
const (
	FetchChainConstants = 0
	FetchEntropy        = 1
	FetchPayload        = 13
	FetchAllItems       = 14
	FetchItem           = 15
)

// Fetch the invocation data of the given kind, index selects within a list
func (e *Env) Fetch(kind, index uint64) ([]byte, bool) {
	return e.fetchVariable(nil, func(_ []uint32, out uint32, length uint64) ReturnCode {
		r, _ := e.call(fetchCall, uint64(out), 0, length, kind, index)
		return r
	})
}

func (e *Env) Entropy() (Hash, bool) {
	b, ok := e.Fetch(FetchEntropy, 0)
	if !ok || len(b) != len(Hash{}) {
		return Hash{}, false
	}
	return Hash(b), true
}

// Item one operand of an accumulation or one transfer of an on-transfer invocation
func (e *Env) Item(index uint64) ([]byte, bool) {
	return e.Fetch(FetchItem, index)
}

// Export appends a segment and returns its index within the package
func (e *Env) Export(segment []byte) (uint64, error) {
	in, _ := e.staged(0, segment)
	r, _ := e.call(exportCall, uint64(in[0]), uint64(len(segment)))
	return r.IntoResult()
}

type LogLevel uint64

const (
	LogFatal LogLevel = iota
	LogWarning
	LogInfo
	LogHelp
	LogPedant
)

// Log a message to the node operator, never fails
func (e *Env) Log(level LogLevel, target, message string) {
	in, _ := e.staged(0, []byte(target), []byte(message))
	targetAddr := uint64(in[0])
	if target == "" {
		targetAddr = 0
	}
	e.call(logCall, uint64(level), targetAddr, uint64(len(target)), uint64(in[1]), uint64(len(message)))
}

// Checkpoint commits the state so far and returns the gas left
func (e *Env) Checkpoint() uint64 {
	r, _ := e.call(checkpointCall)
	return uint64(r)
}

// New creates a service with code hash and code length to be solicited, it returns the new id
func (e *Env) New(codeHash Hash, codeLength uint32, minItemGas, minMemoGas, gratis uint64) (uint32, error) {
	in, _ := e.staged(0, codeHash[:])
	r, _ := e.call(newCall, uint64(in[0]), uint64(codeLength), minItemGas, minMemoGas, gratis)
	return r.IntoU32Result()
}

func (e *Env) Upgrade(codeHash Hash, minItemGas, minMemoGas uint64) error {
	in, _ := e.staged(0, codeHash[:])
	r, _ := e.call(upgradeCall, uint64(in[0]), minItemGas, minMemoGas)
	return r.intoUnit()
}

// Zombify hands the caller over to ejector: its code hash becomes E4(ejector) ⌢ [0; 28]
// with no minimum gas, the one code hash eject accepts from ejector
func (e *Env) Zombify(ejector uint32) {
	var codeHash Hash
	copy(codeHash[:], jam.EncodeUint64(uint64(ejector), 4))
	if err := e.Upgrade(codeHash, 0, 0); err != nil {
		panic(fmt.Sprintf("zombify: %v", err))
	}
}

// Transfer queues amount for dest, gasLimit is paid from the caller's gas now
func (e *Env) Transfer(dest uint32, amount, gasLimit uint64, memo Memo) error {
	in, _ := e.staged(0, memo[:])
	r, _ := e.call(transferCall, uint64(dest), amount, gasLimit, uint64(in[0]))
	return r.intoUnit()
}

// Eject removes target, whose code hash must be the encoded caller id, and takes its balance
func (e *Env) Eject(target uint32, codeHash Hash) error {
	in, _ := e.staged(0, codeHash[:])
	r, _ := e.call(ejectCall, uint64(target), uint64(in[0]))
	return r.intoUnit()
}

// Yield sets the accumulation result hash
func (e *Env) Yield(hash Hash) {
	in, _ := e.staged(0, hash[:])
	r, _ := e.call(yieldCall, uint64(in[0]))
	if err := r.intoUnit(); err != nil {
		panic(fmt.Sprintf("yield: %v", err))
	}
}

// AlwaysAccumulate a service accumulated every block with a gas allowance
type AlwaysAccumulate struct {
	Service uint32
	Gas     uint64
}

// Bless sets the privileged services, assigners holds one service per core
func (e *Env) Bless(manager uint32, assigners []uint32, designate uint32, always []AlwaysAccumulate) error {
	a := make([]byte, 0, 4*len(assigners))
	for _, s := range assigners {
		a = append(a, jam.EncodeUint64(uint64(s), 4)...)
	}
	z := make([]byte, 0, 12*len(always))
	for _, entry := range always {
		z = append(z, jam.EncodeUint64(uint64(entry.Service), 4)...)
		z = append(z, jam.EncodeUint64(entry.Gas, 8)...)
	}
	in, _ := e.staged(0, a, z)
	r, _ := e.call(blessCall, uint64(manager), uint64(in[0]), uint64(designate), uint64(in[1]), uint64(len(always)))
	return r.intoUnit()
}

// Assign replaces the authorizer queue of a core
func (e *Env) Assign(core uint16, queue []Hash) error {
	q := make([]byte, 0, len(queue)*len(Hash{}))
	for _, h := range queue {
		q = append(q, h[:]...)
	}
	in, _ := e.staged(0, q)
	r, _ := e.call(assignCall, uint64(core), uint64(in[0]))
	return r.intoUnit()
}

// Designate stages the next validator keys, keys holds every key blob back to back
func (e *Env) Designate(keys []byte) error {
	in, _ := e.staged(0, keys)
	r, _ := e.call(designateCall, uint64(in[0]))
	return r.intoUnit()
}

// Solicit requests the preimage of (hash, length)
func (e *Env) Solicit(hash Hash, length uint32) error {
	in, _ := e.staged(0, hash[:])
	r, _ := e.call(solicitCall, uint64(in[0]), uint64(length))
	return r.intoUnit()
}

// Forget withdraws the request for the preimage of (hash, length)
func (e *Env) Forget(hash Hash, length uint32) error {
	in, _ := e.staged(0, hash[:])
	r, _ := e.call(forgetCall, uint64(in[0]), uint64(length))
	return r.intoUnit()
}

// Query the request record of (hash, length), false when there is none
func (e *Env) Query(hash Hash, length uint32) (LookupRequestStatus, bool) {
	in, _ := e.staged(0, hash[:])
	r, r8 := e.call(queryCall, uint64(in[0]), uint64(length))
	if r == NONE {
		return LookupRequestStatus{}, false
	}
	return DecodeLookupRequestStatus(uint64(r), r8), true
}

// Provide supplies a solicited preimage of a service, nil service is the caller
func (e *Env) Provide(service *uint32, data []byte) error {
	in, _ := e.staged(0, data)
	r, _ := e.call(provideCall, serviceArg(service), uint64(in[0]), uint64(len(data)))
	return r.intoUnit()
}
