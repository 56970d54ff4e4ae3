package db

// KVStore an ordered key-value store. Keys are compared bytewise, which lets callers
// group records under key prefixes and scan them with an iterator.
type KVStore interface {
	Reader
	Writer
	Delete(key []byte) error
	NewBatch() Batch
	Close() error
}

// Reader read access to a store, Get returns a copy of the value
type Reader interface {
	Get(key []byte) ([]byte, error)
	NewIterator(start, end []byte) (Iterator, error)
}

type Writer interface {
	Put(key []byte, value []byte) error
}

// Batch writes applied atomically on Commit, a batch closed before Commit is discarded
type Batch interface {
	Writer
	Delete(key []byte) error
	Commit() error
	Close() error
}

// Iterator walks a key range in ascending order, it must be closed after use
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Close() error
}
