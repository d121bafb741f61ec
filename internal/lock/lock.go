package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// LockHeldError is returned when another process owns the data directory.
type LockHeldError struct {
	PID  int
	Path string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("database directory locked by PID %d (%s)", e.PID, e.Path)
}

// Lock represents an acquired lock on a data directory.
type Lock struct {
	fl   *flock.Flock
	path string
}

// Acquire takes an exclusive, non-blocking lock on dir/LOCK so that a single
// process owns the database files in dir.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	lockPath := filepath.Join(dir, "LOCK")
	fl := flock.New(lockPath, flock.SetPermissions(0600))

	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", lockPath, err)
	}
	if !ok {
		data, _ := os.ReadFile(lockPath)
		return nil, &LockHeldError{PID: parsePID(string(data)), Path: lockPath}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0600); err != nil {
		_ = fl.Unlock()
		return nil, fmt.Errorf("write lock file: %w", err)
	}

	return &Lock{fl: fl, path: lockPath}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.fl.Unlock()
	l.fl = nil
	return err
}

func parsePID(content string) int {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ := strconv.Atoi(after)
			return pid
		}
	}
	return 0
}
