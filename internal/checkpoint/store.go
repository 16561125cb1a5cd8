//go:generate go run github.com/golang/mock/mockgen -destination=./mocks/store.go -package=mocks . Store

// Package checkpoint persists, per device, the timestamp of the last
// emitted reading so that repeated runs only emit what is new.
//
// A checkpoint is written once, after a run has emitted its whole window.
// A crash between emission and the write makes the next run emit the same
// window again: delivery is at-least-once. Concurrent runs for one device
// are not coordinated and must be serialized by the caller.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInvalidDevice is returned for a device name that cannot key a checkpoint.
var ErrInvalidDevice = errors.New("invalid device name")

// Store reads and writes device checkpoints.
type Store interface {
	// Load returns the stored timestamp. ok is false when nothing usable
	// has been stored for the device.
	Load(ctx context.Context, device string) (ts time.Time, ok bool, err error)

	// Store overwrites the device's checkpoint with ts.
	Store(ctx context.Context, device string, ts time.Time) error
}

// FileStore keeps one text file per device holding a single RFC 3339 UTC
// timestamp.
type FileStore struct {
	dir    string
	logger logrus.FieldLogger
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first write.
func NewFileStore(dir string, logger logrus.FieldLogger) *FileStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &FileStore{dir: dir, logger: logger}
}

// Path returns the checkpoint file of device.
func (s *FileStore) Path(device string) (string, error) {
	if device == "" || device == "." || device == ".." || strings.ContainsAny(device, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDevice, device)
	}
	return filepath.Join(s.dir, device+".checkpoint"), nil
}

// Load returns the device's checkpoint. A missing, empty or unreadable file
// is an absent checkpoint, not an error.
func (s *FileStore) Load(_ context.Context, device string) (time.Time, bool, error) {
	path, err := s.Path(device)
	if err != nil {
		return time.Time{}, false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).WithField("path", path).Warn("Ignoring unreadable checkpoint")
		}
		return time.Time{}, false, nil
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return time.Time{}, false, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, text)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Warn("Ignoring malformed checkpoint")
		return time.Time{}, false, nil
	}
	return ts.UTC(), true, nil
}

// Store writes the checkpoint through a temporary file and a rename, so a
// reader never observes a partial write.
func (s *FileStore) Store(_ context.Context, device string, ts time.Time) error {
	path, err := s.Path(device)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, device+".*.tmp")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(ts.UTC().Format(time.RFC3339Nano) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
