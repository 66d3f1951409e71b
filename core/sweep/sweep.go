// Package sweep removes stale materialized trees from the storage root.
package sweep

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/huangsam/locstat/internal/contract"
	"github.com/huangsam/locstat/schema"
	"github.com/sirupsen/logrus"
)

// LockFileName is the advisory lock file kept in the storage root.
const LockFileName = ".locstat-sweep.lock"

// Sweeper deletes top-level entries of Root older than MaxAge.
type Sweeper struct {
	Root   string
	MaxAge time.Duration
	Clock  func() time.Time
	Logger *logrus.Entry

	// Removed is called after each successful removal when set.
	Removed func(path string)

	// RemoveAll deletes one expired entry. Defaults to os.RemoveAll.
	RemoveAll func(path string) error
}

// New creates a Sweeper for root with the given retention.
func New(root string, maxAge time.Duration) *Sweeper {
	return &Sweeper{Root: root, MaxAge: maxAge}
}

// Sweep removes every expired top-level entry under the root. Failures on
// individual entries are logged and reported, never returned. A missing root
// is a no-op, and so is a sweep that cannot take the cross-process lock.
func (s *Sweeper) Sweep() schema.SweepReport {
	report := schema.SweepReport{Root: s.Root}
	log := s.logger()

	// 1. Missing root means nothing to sweep
	if _, err := os.Stat(s.Root); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			report.Errors = append(report.Errors, err.Error())
			log.WithError(err).Warn("Cannot stat storage root")
		}
		return report
	}

	// 2. Serialize sweeps across processes
	lock := flock.New(filepath.Join(s.Root, LockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("lock: %v", err))
		log.WithError(err).Warn("Failed to acquire sweep lock")
		return report
	}
	if !locked {
		report.Skipped = true
		log.Debug("Sweep already in progress elsewhere, skipping")
		return report
	}
	defer func() { _ = lock.Unlock() }()

	// 3. Remove expired entries
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		log.WithError(err).Warn("Failed to list storage root")
		return report
	}
	now := s.now()
	for _, entry := range entries {
		if entry.Name() == LockFileName {
			continue
		}
		path := filepath.Join(s.Root, entry.Name())
		info, err := os.Lstat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, err))
			}
			continue
		}
		if now.Sub(createdAt(info)) <= s.MaxAge {
			continue
		}
		if err := s.removeAll(path); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", path, err))
			log.WithError(err).WithField("path", path).Warn("Failed to remove expired entry")
			continue
		}
		report.Removed = append(report.Removed, path)
		if s.Removed != nil {
			s.Removed(path)
		}
	}
	if len(report.Removed) > 0 {
		log.WithField("removed", len(report.Removed)).Info("Swept expired repositories")
	}
	return report
}

func (s *Sweeper) removeAll(path string) error {
	if s.RemoveAll != nil {
		return s.RemoveAll(path)
	}
	return os.RemoveAll(path)
}

func (s *Sweeper) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Sweeper) logger() *logrus.Entry {
	if s.Logger != nil {
		return s.Logger.WithField("path", s.Root)
	}
	return contract.ComponentLogger("sweep").WithField("path", s.Root)
}
