package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"signal-systemv1/internal/model"
)

// Lock is an exclusive lock file created with O_EXCL. A lock older than
// staleAfter is assumed to belong to a crashed run and is taken over.
// The file records "pid since token"; only the holder of the token may
// remove it.
type Lock struct {
	path       string
	staleAfter time.Duration
	token      string
	now        func() time.Time
}

// NewLock creates a lock at path.
func NewLock(path string, staleAfter time.Duration) *Lock {
	return &Lock{path: path, staleAfter: staleAfter, token: uuid.NewString(), now: time.Now}
}

// Lock acquires the lock or fails with ErrRunLocked.
func (l *Lock) Lock(_ context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d %s %s\n", os.Getpid(), l.now().UTC().Format(time.RFC3339), l.token)
			return f.Close()
		}
		if !os.IsExist(err) {
			return fmt.Errorf("%w: %v", model.ErrStateUnavailable, err)
		}

		fi, serr := os.Stat(l.path)
		if serr != nil || l.staleAfter <= 0 || l.now().Sub(fi.ModTime()) < l.staleAfter {
			break
		}
		// Stale: remove and retry once.
		os.Remove(l.path)
	}
	return fmt.Errorf("%w: %s held by %s", model.ErrRunLocked, l.path, l.holder())
}

// Unlock removes the lock file if this Lock still holds it. A lock that
// was taken over as stale by another run is left in place and reported.
func (l *Lock) Unlock(_ context.Context) error {
	pid, since, token, err := l.read()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if token != l.token {
		return fmt.Errorf("lock %s lost: now held by pid %s since %s", l.path, pid, since)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (l *Lock) read() (pid, since, token string, err error) {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return "", "", "", err
	}
	f := strings.Fields(string(b))
	for len(f) < 3 {
		f = append(f, "")
	}
	return f[0], f[1], f[2], nil
}

func (l *Lock) holder() string {
	pid, since, _, err := l.read()
	if err != nil || pid == "" || since == "" {
		return "unknown"
	}
	return "pid " + pid + " since " + since
}
