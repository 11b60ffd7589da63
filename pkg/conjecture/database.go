package conjecture

import "crypto/sha256"

// Database stores minimized failing buffers across sessions.
//
// The engine treats a stored buffer as a hint: it is replayed first and
// deleted when it no longer fails. Implementations must be safe for
// concurrent use; stores are last-writer-wins per key.
type Database interface {
	// Lookup returns the buffer stored under key. found is false on a miss.
	Lookup(key []byte) (value []byte, found bool, err error)

	// Store saves value under key, replacing any previous value.
	Store(key, value []byte) error

	// Delete removes the value under key if it still equals value. A newer
	// value stored concurrently is left in place.
	Delete(key, value []byte) error
}

// PropertyKey derives the stable database key of a property from its name.
func PropertyKey(name string) []byte {
	sum := sha256.Sum256([]byte("conjecture/" + name))

	return sum[:]
}
