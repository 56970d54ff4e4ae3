package service

import (
	"iter"
	"maps"
	"slices"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/constants"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/jamtime"
	"github.com/eigerco/pvmhost/internal/preimage"
)

type ServiceState map[block.ServiceId]ServiceAccount

// Clone deep copies every account of the state
func (ss ServiceState) Clone() ServiceState {
	if ss == nil {
		return nil
	}
	cloned := make(ServiceState, len(ss))
	for id, account := range ss {
		cloned[id] = account.Clone()
	}
	return cloned
}

// ServiceAccount represents a service account in the JAM state
type ServiceAccount struct {
	storage                map[string][]byte                               // Dictionary of key-value pairs for storage (s)
	PreimageLookup         map[crypto.Hash][]byte                          // Dictionary of preimage lookups (p)
	PreimageMeta           map[PreImageMetaKey]PreimageHistoricalTimeslots // Metadata for preimageLookup (l)
	CodeHash               crypto.Hash                                     // Hash of the service code (c)
	Balance                uint64                                          // Balance of the service (b)
	GasLimitForAccumulator uint64                                          // Gas limit for accumulation (g)
	GasLimitOnTransfer     uint64                                          // Gas limit for on_transfer (m)
	GratisStorageOffset    uint64                                          // Storage the service is not charged for (f)
}

// NewServiceAccount returns an account with all of its dictionaries allocated
func NewServiceAccount() ServiceAccount {
	return ServiceAccount{
		storage:        make(map[string][]byte),
		PreimageLookup: make(map[crypto.Hash][]byte),
		PreimageMeta:   make(map[PreImageMetaKey]PreimageHistoricalTimeslots),
	}
}

func (sa *ServiceAccount) GetStorage(key []byte) ([]byte, bool) {
	v, ok := sa.storage[string(key)]
	return v, ok
}

// InsertStorage sets the value under key, returning the previous value if any
func (sa *ServiceAccount) InsertStorage(key, value []byte) ([]byte, bool) {
	if sa.storage == nil {
		sa.storage = make(map[string][]byte)
	}
	old, ok := sa.storage[string(key)]
	sa.storage[string(key)] = value
	return old, ok
}

func (sa *ServiceAccount) DeleteStorage(key []byte) ([]byte, bool) {
	old, ok := sa.storage[string(key)]
	if ok {
		delete(sa.storage, string(key))
	}
	return old, ok
}

// StorageItems iterates storage entries in ascending key order
func (sa ServiceAccount) StorageItems() iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		for _, k := range slices.Sorted(maps.Keys(sa.storage)) {
			if !yield([]byte(k), sa.storage[k]) {
				return
			}
		}
	}
}

// EncodedCodeAndMetadata encoded code and metadata as per Equation (9.4 v0.6.3)
func (sa ServiceAccount) EncodedCodeAndMetadata() []byte {
	if code, exists := sa.PreimageLookup[sa.CodeHash]; exists {
		return code
	}
	return nil
}

// TotalItems (9.8 v0.6.7) ai = 2·|al| + |as|
func (sa ServiceAccount) TotalItems() uint32 {
	return uint32(2*len(sa.PreimageMeta) + len(sa.storage))
}

// TotalStorageSize (9.8 v0.6.7) ao = Σ(h,z)∈K(al) 81 + z + Σ(x,y)∈as 34 + |y| + |x|
func (sa ServiceAccount) TotalStorageSize() uint64 {
	var ao uint64
	for key := range sa.PreimageMeta {
		ao += 81 + uint64(key.Length)
	}
	for k, v := range sa.storage {
		ao += 34 + uint64(len(k)) + uint64(len(v))
	}
	return ao
}

// ThresholdBalance (9.8 v0.6.7) at = max(0, BS + BI·ai + BL·ao − af)
func (sa ServiceAccount) ThresholdBalance() uint64 {
	t := constants.BasicMinimumBalance +
		constants.AdditionalMinimumBalancePerItem*uint64(sa.TotalItems()) +
		constants.AdditionalMinimumBalancePerOctet*sa.TotalStorageSize()
	if sa.GratisStorageOffset >= t {
		return 0
	}
	return t - sa.GratisStorageOffset
}

// AddPreimage stores p and marks it provided at the given timeslot. The request
// record must already exist and be unprovided.
// (9.6 v0.6.7) ∀a ∈ A, (h ↦ p) ∈ ap ⇒ h = H(p) ∧ {h, |p|} ∈ K(al)
func (sa *ServiceAccount) AddPreimage(p []byte, currentTimeslot jamtime.Timeslot) error {
	h := crypto.HashData(p)
	metaKey := PreImageMetaKey{Hash: h, Length: PreimageLength(len(p))}
	record, exists := sa.PreimageMeta[metaKey]
	if !exists {
		return preimage.ErrNotRequested
	}
	provided, err := preimage.Provide(record, currentTimeslot)
	if err != nil {
		return err
	}
	if sa.PreimageLookup == nil {
		sa.PreimageLookup = make(map[crypto.Hash][]byte)
	}
	sa.PreimageLookup[h] = p
	sa.PreimageMeta[metaKey] = provided
	return nil
}

// LookupPreimage implements the historical lookup function (Λ) as defined in Equation (9.7 v0.6.7).
func (sa ServiceAccount) LookupPreimage(t jamtime.Timeslot, h crypto.Hash) []byte {
	p, exists := sa.PreimageLookup[h]
	if !exists {
		return nil
	}

	metaKey := PreImageMetaKey{Hash: h, Length: PreimageLength(len(p))}
	metadata, exists := sa.PreimageMeta[metaKey]
	if !exists {
		return nil
	}

	if preimage.Available(metadata, t) {
		return p
	}

	return nil
}

// Info returns the account summary exposed to guests by the info host call
func (sa ServiceAccount) Info() ServiceInfo {
	return ServiceInfo{
		CodeHash:               sa.CodeHash,
		Balance:                sa.Balance,
		ThresholdBalance:       sa.ThresholdBalance(),
		GasLimitForAccumulator: sa.GasLimitForAccumulator,
		GasLimitOnTransfer:     sa.GasLimitOnTransfer,
		TotalStorageSize:       sa.TotalStorageSize(),
		TotalItems:             sa.TotalItems(),
	}
}

// Clone deep copies the account including all stored byte slices
func (sa ServiceAccount) Clone() ServiceAccount {
	cloned := sa
	if sa.storage != nil {
		cloned.storage = make(map[string][]byte, len(sa.storage))
		for k, v := range sa.storage {
			cloned.storage[k] = slices.Clone(v)
		}
	}
	if sa.PreimageLookup != nil {
		cloned.PreimageLookup = make(map[crypto.Hash][]byte, len(sa.PreimageLookup))
		for k, v := range sa.PreimageLookup {
			cloned.PreimageLookup[k] = slices.Clone(v)
		}
	}
	if sa.PreimageMeta != nil {
		cloned.PreimageMeta = make(map[PreImageMetaKey]PreimageHistoricalTimeslots, len(sa.PreimageMeta))
		for k, v := range sa.PreimageMeta {
			cloned.PreimageMeta[k] = slices.Clone(v)
		}
	}
	return cloned
}

// ServiceInfo is the encoded account summary, integers use the compact encoding
type ServiceInfo struct {
	CodeHash               crypto.Hash
	Balance                uint64 `jam:"encoding=compact"`
	ThresholdBalance       uint64 `jam:"encoding=compact"`
	GasLimitForAccumulator uint64 `jam:"encoding=compact"`
	GasLimitOnTransfer     uint64 `jam:"encoding=compact"`
	TotalStorageSize       uint64 `jam:"encoding=compact"`
	TotalItems             uint32 `jam:"encoding=compact"`
}

type PreimageLength uint32

type PreImageMetaKey struct {
	Hash   crypto.Hash    // Hash of the preimage (h)
	Length PreimageLength // Length (presupposed) of the preimage (z)
}

// PreimageHistoricalTimeslots is a request record holding up to three timeslots
type PreimageHistoricalTimeslots = []jamtime.Timeslot

type Memo [constants.TransferMemoSizeBytes]byte

// DeferredTransfer Equation (12.14 v0.6.7): T ≡ (s ∈ Ns, d ∈ Ns, a ∈ Nb, m ∈ Ym, g ∈ Ng)
type DeferredTransfer struct {
	SenderServiceIndex   block.ServiceId // sender service index (s)
	ReceiverServiceIndex block.ServiceId // receiver service index (d)
	Balance              uint64          // balance value (a)
	Memo                 Memo            // memo (m)
	GasLimit             uint64          // gas limit (g)
}
