package store

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/eigerco/pvmhost/internal/block"
	"github.com/eigerco/pvmhost/internal/crypto"
	"github.com/eigerco/pvmhost/internal/service"
	"github.com/eigerco/pvmhost/pkg/db"
	"github.com/eigerco/pvmhost/pkg/db/pebble"
	"github.com/eigerco/pvmhost/pkg/serialization/codec/jam"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrServicesClosed  = errors.New("services store is closed")
)

// Services persists service accounts. Every dictionary entry of an account is its own
// key under the account id so a single account can be loaded or replaced on its own.
type Services struct {
	db     db.KVStore
	closed atomic.Bool
}

func NewServices(db db.KVStore) *Services {
	return &Services{db: db}
}

// accountRecord the fixed fields of an account
type accountRecord struct {
	CodeHash               crypto.Hash
	Balance                uint64
	GasLimitForAccumulator uint64
	GasLimitOnTransfer     uint64
	GratisStorageOffset    uint64
}

func serviceIdBytes(id block.ServiceId) []byte {
	return jam.EncodeUint64(uint64(id), 4)
}

// PutService replaces the stored account with a
func (s *Services) PutService(id block.ServiceId, a service.ServiceAccount) error {
	if s.closed.Load() {
		return ErrServicesClosed
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := s.deleteService(batch, id); err != nil {
		return err
	}
	if err := putService(batch, id, a); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf(ErrFailedBatchCommit, err)
	}
	return nil
}

// PutServiceState writes every account of the state atomically and removes stored
// accounts the state no longer has
func (s *Services) PutServiceState(state service.ServiceState) error {
	if s.closed.Load() {
		return ErrServicesClosed
	}

	stored, err := s.serviceIds()
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, id := range stored {
		if err := s.deleteService(batch, id); err != nil {
			return err
		}
	}
	for id, a := range state {
		if err := putService(batch, id, a); err != nil {
			return err
		}
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf(ErrFailedBatchCommit, err)
	}
	return nil
}

func putService(w db.Writer, id block.ServiceId, a service.ServiceAccount) error {
	idBytes := serviceIdBytes(id)

	record, err := jam.Marshal(accountRecord{
		CodeHash:               a.CodeHash,
		Balance:                a.Balance,
		GasLimitForAccumulator: a.GasLimitForAccumulator,
		GasLimitOnTransfer:     a.GasLimitOnTransfer,
		GratisStorageOffset:    a.GratisStorageOffset,
	})
	if err != nil {
		return fmt.Errorf("marshal service %d: %w", id, err)
	}
	if err := w.Put(makeKey(prefixServiceAccount, idBytes), record); err != nil {
		return fmt.Errorf("store service %d: %w", id, err)
	}

	for k, v := range a.StorageItems() {
		if err := w.Put(makeKey(prefixServiceStorage, idBytes, k), v); err != nil {
			return fmt.Errorf("store storage item of service %d: %w", id, err)
		}
	}
	for h, p := range a.PreimageLookup {
		if err := w.Put(makeKey(prefixPreimage, idBytes, h[:]), p); err != nil {
			return fmt.Errorf("store preimage of service %d: %w", id, err)
		}
	}
	for key, slots := range a.PreimageMeta {
		b, err := jam.Marshal(slots)
		if err != nil {
			return fmt.Errorf("marshal preimage request of service %d: %w", id, err)
		}
		length := jam.EncodeUint64(uint64(key.Length), 4)
		if err := w.Put(makeKey(prefixPreimageMeta, idBytes, key.Hash[:], length), b); err != nil {
			return fmt.Errorf("store preimage request of service %d: %w", id, err)
		}
	}
	return nil
}

// deleteService removes every key of the account
func (s *Services) deleteService(batch db.Batch, id block.ServiceId) error {
	idBytes := serviceIdBytes(id)
	if err := batch.Delete(makeKey(prefixServiceAccount, idBytes)); err != nil {
		return err
	}
	for _, prefix := range []byte{prefixServiceStorage, prefixPreimage, prefixPreimageMeta} {
		err := s.scan(makeKey(prefix, idBytes), func(key, _ []byte) error {
			return batch.Delete(key)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// GetService loads one account
func (s *Services) GetService(id block.ServiceId) (service.ServiceAccount, error) {
	if s.closed.Load() {
		return service.ServiceAccount{}, ErrServicesClosed
	}

	idBytes := serviceIdBytes(id)
	b, err := s.db.Get(makeKey(prefixServiceAccount, idBytes))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return service.ServiceAccount{}, ErrServiceNotFound
		}
		return service.ServiceAccount{}, err
	}
	var record accountRecord
	if err := jam.Unmarshal(b, &record); err != nil {
		return service.ServiceAccount{}, fmt.Errorf("unmarshal service %d: %w", id, err)
	}

	a := service.NewServiceAccount()
	a.CodeHash = record.CodeHash
	a.Balance = record.Balance
	a.GasLimitForAccumulator = record.GasLimitForAccumulator
	a.GasLimitOnTransfer = record.GasLimitOnTransfer
	a.GratisStorageOffset = record.GratisStorageOffset

	prefix := makeKey(prefixServiceStorage, idBytes)
	err = s.scan(prefix, func(key, value []byte) error {
		a.InsertStorage(key[len(prefix):], value)
		return nil
	})
	if err != nil {
		return service.ServiceAccount{}, err
	}

	prefix = makeKey(prefixPreimage, idBytes)
	err = s.scan(prefix, func(key, value []byte) error {
		if len(key) != len(prefix)+crypto.HashSize {
			return fmt.Errorf("malformed preimage key of service %d", id)
		}
		a.PreimageLookup[crypto.Hash(key[len(prefix):])] = value
		return nil
	})
	if err != nil {
		return service.ServiceAccount{}, err
	}

	prefix = makeKey(prefixPreimageMeta, idBytes)
	err = s.scan(prefix, func(key, value []byte) error {
		rest := key[len(prefix):]
		if len(rest) != crypto.HashSize+4 {
			return fmt.Errorf("malformed preimage request key of service %d", id)
		}
		var slots service.PreimageHistoricalTimeslots
		if err := jam.Unmarshal(value, &slots); err != nil {
			return fmt.Errorf("unmarshal preimage request of service %d: %w", id, err)
		}
		a.PreimageMeta[service.PreImageMetaKey{
			Hash:   crypto.Hash(rest[:crypto.HashSize]),
			Length: service.PreimageLength(jam.DecodeUint64(rest[crypto.HashSize:])),
		}] = slots
		return nil
	})
	if err != nil {
		return service.ServiceAccount{}, err
	}
	return a, nil
}

// GetServiceState loads every stored account
func (s *Services) GetServiceState() (service.ServiceState, error) {
	ids, err := s.serviceIds()
	if err != nil {
		return nil, err
	}
	state := make(service.ServiceState, len(ids))
	for _, id := range ids {
		if state[id], err = s.GetService(id); err != nil {
			return nil, err
		}
	}
	return state, nil
}

func (s *Services) serviceIds() ([]block.ServiceId, error) {
	if s.closed.Load() {
		return nil, ErrServicesClosed
	}
	prefix := []byte{prefixServiceAccount}
	var ids []block.ServiceId
	err := s.scan(prefix, func(key, _ []byte) error {
		if len(key) != 5 {
			return fmt.Errorf("malformed service key %x", key)
		}
		ids = append(ids, block.ServiceId(jam.DecodeUint64(key[1:])))
		return nil
	})
	return ids, err
}

// scan calls fn for every key starting with prefix in ascending order
func (s *Services) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIterator(prefix, pebble.PrefixUpperBound(prefix))
	if err != nil {
		return fmt.Errorf("scan %s: %w", PrefixToString(prefix[0]), err)
	}
	defer iter.Close()

	for iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return err
		}
		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the store closed, the underlying database is owned by the caller
func (s *Services) Close() error {
	s.closed.Store(true)
	return nil
}
