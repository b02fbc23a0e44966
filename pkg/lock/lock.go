// Package lock provides the per-repository exclusion marker that serializes
// release pipelines and profile-cache writes. The lock is a file in the OS
// temp dir keyed to the repository root; it holds the owner PID so a crashed
// run's lock can be reclaimed once the owner is gone.
package lock

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"
)

// ErrHeld reports that another live run holds the lock.
var ErrHeld = errors.New("another relkit run holds the repository lock")

// staleAfter is the grace period past which a lock is reclaimable even when
// its recorded PID maps to a live process (PID reuse).
const staleAfter = 24 * time.Hour

const (
	acquireAttempts = 3
	acquireDelay    = 200 * time.Millisecond
)

// Lock is a per-repository exclusion marker.
type Lock struct {
	path     string
	pid      int
	acquired bool
}

// New creates a Lock for the given repository root. The lock file name is
// derived from the root path so distinct repositories never contend.
func New(repoRoot string) *Lock {
	hash := fmt.Sprintf("%x", sha256.Sum256([]byte(repoRoot)))[:16]
	return &Lock{
		path: filepath.Join(os.TempDir(), fmt.Sprintf("relkit-%s.lock", hash)),
		pid:  os.Getpid(),
	}
}

// Path returns the lock file location, for diagnostics.
func (l *Lock) Path() string {
	return l.path
}

// Acquire takes the lock, reclaiming stale locks left by dead or long-gone
// owners. When a live run holds the lock, Acquire retries briefly and then
// returns ErrHeld naming the holder.
func (l *Lock) Acquire() error {
	return retry.Do(
		l.tryAcquire,
		retry.Attempts(acquireAttempts),
		retry.Delay(acquireDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return !errors.Is(err, ErrHeld) }),
	)
}

func (l *Lock) tryAcquire() error {
	// O_EXCL with O_CREATE creates the file atomically
	fd, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		_, writeErr := fd.WriteString(strconv.Itoa(l.pid))
		closeErr := fd.Close()
		if writeErr != nil || closeErr != nil {
			_ = os.Remove(l.path)
			return errors.New("failed to write PID to lock file")
		}
		l.acquired = true
		return nil
	}
	if !os.IsExist(err) {
		return errors.Wrapf(err, "failed to create lock file %s", l.path)
	}

	holder, holderErr := l.readHolder()
	if holderErr == nil && !l.isStale(holder) {
		return errors.Wrapf(ErrHeld, "held by PID %d (lock file %s)", holder, l.path)
	}

	// dead owner, expired grace period, or unreadable lock: reclaim
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove stale lock file %s", l.path)
	}
	return errors.Errorf("reclaimed stale lock %s, retrying acquisition", l.path)
}

func (l *Lock) readHolder() (int, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0, errors.Wrap(err, "failed to read lock file")
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrap(err, "invalid PID in lock file")
	}
	return pid, nil
}

// isStale reports whether a lock held by holder can be reclaimed: the owner
// process is gone, or the lock has outlived the grace period.
func (l *Lock) isStale(holder int) bool {
	alive, _ := process.PidExists(int32(holder))
	if !alive {
		return true
	}

	info, err := os.Stat(l.path)
	if err != nil {
		return true
	}
	return time.Since(info.ModTime()) > staleAfter
}

// Release removes the lock if this process acquired it. Safe to call more
// than once.
func (l *Lock) Release() error {
	if !l.acquired {
		return nil
	}

	l.acquired = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove lock file %s", l.path)
	}
	return nil
}
