package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrAlreadyClaimed = errors.New("message already claimed")
	ErrNotSpooled     = errors.New("message not found in spool")
	ErrBadSpoolID     = errors.New("invalid spool id")
)

const (
	spoolExt   = ".eml"
	claimedExt = ".claimed"
	archiveDir = "archive"
)

// Spool is a directory-backed holding area for raw messages awaiting
// processing. Each message is a single file named by a fresh UUID; claiming
// renames the file, which is atomic on POSIX filesystems, so concurrent
// workers never process the same message twice.
type Spool struct {
	dir string
}

// NewSpool prepares the spool directory, creating it if needed. A directory
// that cannot be created or written is a startup failure.
func NewSpool(dir string) (*Spool, error) {
	if err := os.MkdirAll(filepath.Join(dir, archiveDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the spool directory path.
func (s *Spool) Dir() string {
	return s.dir
}

// Put writes a raw message under a fresh unique name and returns its id.
func (s *Spool) Put(raw []byte) (string, error) {
	id := uuid.New().String()
	if err := os.WriteFile(s.path(id), raw, 0644); err != nil {
		return "", fmt.Errorf("failed to spool message: %w", err)
	}
	return id, nil
}

// List returns the ids of unclaimed messages in name order.
func (s *Spool) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, spoolExt) {
			ids = append(ids, strings.TrimSuffix(name, spoolExt))
		}
	}
	return ids, nil
}

// Count returns the number of unclaimed messages.
func (s *Spool) Count() (int, error) {
	ids, err := s.List()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Claim takes exclusive ownership of a message. A message already claimed
// by another worker, or no longer present, returns ErrAlreadyClaimed.
func (s *Spool) Claim(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := os.Rename(s.path(id), s.claimedPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrAlreadyClaimed
		}
		return fmt.Errorf("failed to claim message: %w", err)
	}
	return nil
}

// Read returns the raw bytes of a message, claimed or not.
func (s *Spool) Read(id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.claimedPath(id))
	if errors.Is(err, os.ErrNotExist) {
		raw, err = os.ReadFile(s.path(id))
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotSpooled
		}
		return nil, fmt.Errorf("failed to read spooled message: %w", err)
	}
	return raw, nil
}

// Remove deletes a message. A missing file is not an error.
func (s *Spool) Remove(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	for _, path := range []string{s.claimedPath(id), s.path(id)} {
		err := os.Remove(path)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove spooled message: %w", err)
		}
	}
	return nil
}

// Archive moves a processed message into the archive subdirectory instead
// of deleting it.
func (s *Spool) Archive(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	dest := filepath.Join(s.dir, archiveDir, id+spoolExt)
	err := os.Rename(s.claimedPath(id), dest)
	if errors.Is(err, os.ErrNotExist) {
		err = os.Rename(s.path(id), dest)
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotSpooled
		}
		return fmt.Errorf("failed to archive message: %w", err)
	}
	return nil
}

func (s *Spool) path(id string) string {
	return filepath.Join(s.dir, id+spoolExt)
}

func (s *Spool) claimedPath(id string) string {
	return filepath.Join(s.dir, id+spoolExt+claimedExt)
}

// validateID rejects ids that could escape the spool directory.
func validateID(id string) error {
	if id == "" || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return ErrBadSpoolID
	}
	return nil
}
