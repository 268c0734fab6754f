package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockTimeout    = 2 * time.Second
	lockBackoffMin = 5 * time.Millisecond
	lockBackoffMax = 50 * time.Millisecond
)

// ErrLockTimeout is returned when another process keeps the write lock
// longer than the wait allows.
var ErrLockTimeout = errors.New("database write lock timeout")

// lockHolder is stamped into the lock file by whoever holds it, so a
// waiter that gives up can say who was in the way.
type lockHolder struct {
	PID     int       `json:"pid"`
	Command string    `json:"cmd"`
	Since   time.Time `json:"since"`
}

func (h lockHolder) String() string {
	s := fmt.Sprintf("pid %d", h.PID)
	if h.Command != "" {
		s += " (" + h.Command + ")"
	}
	s += " since " + h.Since.Local().Format(time.TimeOnly)
	if !processAlive(h.PID) {
		s += ", stale"
	}
	return s
}

// fileLock is an exclusive OS lock on a sidecar file next to the database.
// The OS drops it if the process dies.
type fileLock struct {
	path string
	f    *os.File
}

// lockFile blocks until the lock at path is held or timeout passes. A
// timeout <= 0 tries once.
func lockFile(path string, timeout time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	l := &fileLock{path: path, f: f}

	deadline := time.Now().Add(timeout)
	for wait := lockBackoffMin; ; wait = min(wait*2, lockBackoffMax) {
		if l.tryLock() == nil {
			l.stamp()
			return l, nil
		}
		if timeout <= 0 || time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w after %v (holder: %s)", ErrLockTimeout, timeout, readHolder(path))
		}
		time.Sleep(wait)
	}
}

// Unlock clears the holder stamp and releases the lock.
func (l *fileLock) Unlock() {
	if l == nil || l.f == nil {
		return
	}
	l.f.Truncate(0)
	l.unlock()
	l.f.Close()
	l.f = nil
}

func (l *fileLock) stamp() {
	data, _ := json.Marshal(lockHolder{
		PID:     os.Getpid(),
		Command: commandName(),
		Since:   time.Now(),
	})
	l.f.Truncate(0)
	l.f.WriteAt(data, 0)
	l.f.Sync()
}

func readHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return "unknown"
	}
	var h lockHolder
	if json.Unmarshal(data, &h) != nil || h.PID == 0 {
		return "unknown"
	}
	return h.String()
}

// commandName is e.g. "offsync run".
func commandName() string {
	if len(os.Args) == 0 {
		return ""
	}
	name := filepath.Base(os.Args[0])
	if len(os.Args) > 1 {
		name += " " + os.Args[1]
	}
	return name
}
