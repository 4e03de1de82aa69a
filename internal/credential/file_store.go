package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorruptSnapshot is returned by Load when the snapshot exists but does not
// hold a usable credential.
var ErrCorruptSnapshot = errors.New("corrupt credential snapshot")

const (
	configDirName = "castor"
	fileName      = "credential.json"
)

// FileStore keeps a snapshot of the cached credential on disk so that a
// restarted process can serve it until it expires.
type FileStore struct {
	path string
}

// DefaultFileStore returns a FileStore using the default location:
// ~/.config/castor/credential.json
func DefaultFileStore() (*FileStore, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("getting user config dir: %w", err)
	}

	return &FileStore{path: filepath.Join(configDir, configDirName, fileName)}, nil
}

// NewFileStore creates a FileStore with a custom path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file path where the credential is stored.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the stored credential. It returns (nil, nil) when nothing has
// been stored yet.
func (s *FileStore) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credential snapshot: %w", err)
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if cred.IsZero() {
		return nil, fmt.Errorf("%w: no value", ErrCorruptSnapshot)
	}
	return &cred, nil
}

// Save replaces the stored credential. The snapshot is written to a
// temporary file in the same directory and renamed into place, so a reader
// sees either the old or the new credential.
func (s *FileStore) Save(cred *Credential) error {
	if cred == nil || cred.IsZero() {
		return errors.New("cannot save empty credential")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encoding credential: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot. A missing file is not an error.
func (s *FileStore) Delete() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credential snapshot: %w", err)
	}
	return nil
}
