package state

import (
	"fmt"
	"os"
	"time"
)

const staleLockAge = 10 * time.Minute

// Lock takes an exclusive lock on the state database for the duration of a
// mutating operation. Two processes must never interleave writes to the same
// environment, so deploy and destroy hold this for their whole run.
func (s *Store) Lock() error {
	lockPath := s.lockPath()

	if info, err := os.Stat(lockPath); err == nil {
		if time.Since(info.ModTime()) > staleLockAge {
			_ = os.Remove(lockPath)
		} else {
			return fmt.Errorf("state is locked by another process (lock file: %s); "+
				"remove the lock file manually if no other run is active", lockPath)
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("state is locked by another process (lock file: %s)", lockPath)
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Unlock releases the lock taken by Lock.
func (s *Store) Unlock() error {
	if err := os.Remove(s.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}
