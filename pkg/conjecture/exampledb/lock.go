package exampledb

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive flock on path, creating it if needed. The
// returned function releases the lock.
//
// The lock file itself is never removed: replacing it while held would let
// two processes lock different inodes for the same key.
func lockFile(path string) (func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	fd := int(f.Fd())

	if err := flockRetryEINTR(fd, unix.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}

	return func() error {
		unlockErr := flockRetryEINTR(fd, unix.LOCK_UN)
		closeErr := f.Close()

		if unlockErr != nil {
			unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
		}

		if closeErr != nil {
			closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
		}

		return errors.Join(unlockErr, closeErr)
	}, nil
}

func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
