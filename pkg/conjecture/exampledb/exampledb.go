// Package exampledb provides backends for [conjecture.Database].
//
// All backends are safe for concurrent use. [Directory] and [Bolt] persist
// across processes; [Memory] lives as long as the process.
package exampledb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/calvinalkan/conjecture/pkg/conjecture"
)

var (
	// ErrUnknownKind is returned by [Open] for an unsupported backend name.
	ErrUnknownKind = errors.New("exampledb: unknown database kind")

	// ErrClosed is returned when using a database after Close.
	ErrClosed = errors.New("exampledb: database closed")
)

// Backend kinds accepted by [Open].
const (
	KindMemory    = "memory"
	KindDirectory = "directory"
	KindBolt      = "bolt"
)

// Lister enumerates stored keys, for inspection tools.
type Lister interface {
	Keys() ([][]byte, error)
}

// DB is a database backend that can be listed and closed.
type DB interface {
	conjecture.Database
	Lister
	io.Closer
}

// Open opens a backend by kind. path is ignored for [KindMemory].
func Open(kind, path string) (DB, error) {
	switch kind {
	case KindMemory:
		return NewMemory(), nil
	case KindDirectory:
		return NewDirectory(path)
	case KindBolt:
		return OpenBolt(path)
	default:
		return nil, fmt.Errorf("%w: %q (want %s, %s or %s)", ErrUnknownKind, kind, KindMemory, KindDirectory, KindBolt)
	}
}

func sortKeys(keys [][]byte) [][]byte {
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	return keys
}
