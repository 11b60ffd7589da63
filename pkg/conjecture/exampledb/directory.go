package exampledb

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

const (
	exampleExt = ".example"
	lockExt    = ".lock"
)

// Directory stores one file per key, named by the hex encoded key.
//
// Writes are atomic (temp file + rename). Store and Delete for the same key
// are serialized across processes with an adjacent lock file, so a Delete
// never removes a value stored concurrently by another session.
type Directory struct {
	dir string
}

// NewDirectory opens (creating if needed) a directory database.
func NewDirectory(dir string) (*Directory, error) {
	if dir == "" {
		return nil, errors.New("exampledb: directory path is empty")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating example directory: %w", err)
	}

	return &Directory{dir: dir}, nil
}

// Path returns the database directory.
func (d *Directory) Path() string { return d.dir }

func (d *Directory) file(key []byte) string {
	return filepath.Join(d.dir, hex.EncodeToString(key)+exampleExt)
}

func (d *Directory) Lookup(key []byte) ([]byte, bool, error) {
	data, err := os.ReadFile(d.file(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("reading example: %w", err)
	}

	return data, true, nil
}

func (d *Directory) Store(key, value []byte) error {
	path := d.file(key)

	unlock, err := lockFile(path + lockExt)
	if err != nil {
		return err
	}

	writeErr := atomic.WriteFile(path, bytes.NewReader(value))
	if writeErr != nil {
		writeErr = fmt.Errorf("writing example: %w", writeErr)
	}

	return errors.Join(writeErr, unlock())
}

func (d *Directory) Delete(key, value []byte) error {
	path := d.file(key)

	unlock, err := lockFile(path + lockExt)
	if err != nil {
		return err
	}

	return errors.Join(d.deleteLocked(path, value), unlock())
}

func (d *Directory) deleteLocked(path string, value []byte) error {
	cur, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("reading example: %w", err)
	}

	if !bytes.Equal(cur, value) {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing example: %w", err)
	}

	return nil
}

// Keys lists stored keys, skipping lock and temporary files.
func (d *Directory) Keys() ([][]byte, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, fmt.Errorf("listing examples: %w", err)
	}

	var keys [][]byte

	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), exampleExt)
		if !ok || e.IsDir() {
			continue
		}

		key, err := hex.DecodeString(name)
		if err != nil {
			continue
		}

		keys = append(keys, key)
	}

	return sortKeys(keys), nil
}

// Close is a no-op; lock files are left in place.
func (d *Directory) Close() error { return nil }
