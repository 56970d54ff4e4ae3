package store

const (
	ErrFailedBatchCommit = "failed to commit batch: %w"
)

// Prefix constants for all store types
const (
	prefixServiceAccount byte = iota + 1
	prefixServiceStorage
	prefixPreimage
	prefixPreimageMeta
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixServiceAccount:
		return "serviceAccount"
	case prefixServiceStorage:
		return "serviceStorage"
	case prefixPreimage:
		return "preimage"
	case prefixPreimageMeta:
		return "preimageMeta"
	default:
		return "unknown"
	}
}

// makeKey creates a key from a prefix and its parts
func makeKey(prefix byte, parts ...[]byte) []byte {
	size := 1
	for _, p := range parts {
		size += len(p)
	}
	key := make([]byte, 1, size)
	key[0] = prefix
	for _, p := range parts {
		key = append(key, p...)
	}
	return key
}
