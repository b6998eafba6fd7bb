package state

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/wouteroostervld/kgrag/pkg/domain"
)

// State maps filenames to the content hash that was last ingested,
// together with the embedding model the index was built with.
type State struct {
	EmbeddingModel string            `json:"embedding_model"`
	Files          map[string]string `json:"files"`
}

// New returns an empty state.
func New() *State {
	return &State{Files: make(map[string]string)}
}

// Hash returns the stored hash for filename.
func (s *State) Hash(filename string) (string, bool) {
	h, ok := s.Files[filename]
	return h, ok
}

// Set records hash for filename.
func (s *State) Set(filename, hash string) {
	if s.Files == nil {
		s.Files = make(map[string]string)
	}
	s.Files[filename] = hash
}

// Delete forgets filename.
func (s *State) Delete(filename string) {
	delete(s.Files, filename)
}

// Filenames returns tracked filenames in sorted order.
func (s *State) Filenames() []string {
	names := make([]string, 0, len(s.Files))
	for name := range s.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Store loads and saves sync state.
type Store interface {
	Load() (*State, error)
	Save(*State) error
}

// FileStore persists state as an indented JSON document.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the state file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the state file. A missing file yields an empty state.
// Unreadable or malformed content is a CorruptStateError, never an empty state.
func (f *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, domain.IOError("read state", f.path, err)
	}
	return Decode(f.path, data)
}

// Decode parses state content. Both the current format and the legacy flat
// {filename: hash} mapping are accepted.
func Decode(path string, data []byte) (*State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.CorruptStateError(path, err)
	}
	if raw == nil {
		return nil, domain.CorruptStateError(path, fmt.Errorf("state is not a JSON object"))
	}

	_, hasFiles := raw["files"]
	_, hasModel := raw["embedding_model"]
	if hasFiles || hasModel {
		st := New()
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(st); err != nil {
			return nil, domain.CorruptStateError(path, err)
		}
		if st.Files == nil {
			st.Files = make(map[string]string)
		}
		return st, nil
	}

	st := New()
	for name, value := range raw {
		var hash string
		if err := json.Unmarshal(value, &hash); err != nil {
			return nil, domain.CorruptStateError(path, fmt.Errorf("entry %q is not a hash string: %w", name, err))
		}
		st.Files[name] = hash
	}
	if len(st.Files) > 0 {
		slog.Warn("Loaded legacy sync state without embedding model", "path", path, "files", len(st.Files))
	}
	return st, nil
}

// Save overwrites the state file durably: the content is written to a
// temporary file in the same directory, synced and renamed into place.
func (f *FileStore) Save(st *State) error {
	data, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		return domain.IOError("encode state", f.path, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.IOError("create state directory", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return domain.IOError("create temp state", f.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return domain.IOError("write state", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return domain.IOError("sync state", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return domain.IOError("close state", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return domain.IOError("chmod state", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return domain.IOError("replace state", f.path, err)
	}
	return nil
}

// ComputeHash returns the lowercase hex MD5 digest of the file at path.
func ComputeHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", domain.IOError("read document", path, err)
	}
	defer file.Close()

	h := md5.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", domain.IOError("read document", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the lowercase hex MD5 digest of data.
func HashBytes(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
