// Package upload persists uploaded audio and reassembles chunked
// uploads into single ordered byte streams.
package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/logging"
	"github.com/prog-le/Simultaneous-Interpretation/internal/observability/metrics"
)

// MissingPartError reports the first part index absent at merge time.
type MissingPartError struct {
	Index int
}

func (e *MissingPartError) Error() string {
	return fmt.Sprintf("upload: missing part %d", e.Index)
}

// ErrInvalidName is returned for filenames that would escape the
// upload directory.
var ErrInvalidName = errors.New("upload: invalid filename")

// Store keeps upload parts on disk, keyed by (session, filename,
// partIndex). Parts survive until a successful merge or explicit
// cleanup.
type Store struct {
	root    string
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, m *metrics.Metrics) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return &Store{
		root:    dir,
		logger:  logging.WithComponent("upload.store"),
		metrics: m,
	}, nil
}

// SaveFile persists a whole uploaded file and returns its path.
func (s *Store) SaveFile(sessionID, filename string, r io.Reader) (string, error) {
	name, err := sanitize(filename)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.root, sessionID+"_"+name)
	if err := writeFile(path, r); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}
	return path, nil
}

// PutChunk persists one upload part. Parts may arrive in any order;
// a duplicate index overwrites the previous bytes.
func (s *Store) PutChunk(sessionID, filename string, partIndex int, r io.Reader) error {
	if partIndex < 0 {
		return fmt.Errorf("%w: negative part index %d", ErrInvalidName, partIndex)
	}
	name, err := sanitize(filename)
	if err != nil {
		return err
	}
	dir := s.chunkDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	if err := writeFile(filepath.Join(dir, partName(name, partIndex)), r); err != nil {
		return fmt.Errorf("save chunk %d: %w", partIndex, err)
	}
	s.metrics.RecordUploadChunk()
	return nil
}

// Complete verifies that every part in [0, totalParts) is present,
// concatenates them in index order and returns the merged stream.
// Closing the stream deletes the merged file. On success the stored
// parts are purged; on a missing part they are retained so the caller
// can retry the remaining uploads.
func (s *Store) Complete(sessionID, filename string, totalParts int) (io.ReadCloser, error) {
	name, err := sanitize(filename)
	if err != nil {
		return nil, err
	}
	if totalParts < 1 {
		return nil, fmt.Errorf("%w: totalParts must be >= 1", ErrInvalidName)
	}
	dir := s.chunkDir(sessionID)

	// Verify before touching anything: report the first gap.
	for i := 0; i < totalParts; i++ {
		if _, err := os.Stat(filepath.Join(dir, partName(name, i))); err != nil {
			mpe := &MissingPartError{Index: i}
			s.metrics.RecordUploadMerge(mpe)
			return nil, mpe
		}
	}

	mergedPath := filepath.Join(s.root, sessionID+"_"+name)
	merged, err := os.Create(mergedPath)
	if err != nil {
		s.metrics.RecordUploadMerge(err)
		return nil, fmt.Errorf("create merged file: %w", err)
	}

	for i := 0; i < totalParts; i++ {
		if err := appendPart(merged, filepath.Join(dir, partName(name, i))); err != nil {
			merged.Close()
			os.Remove(mergedPath)
			s.metrics.RecordUploadMerge(err)
			return nil, fmt.Errorf("merge part %d: %w", i, err)
		}
	}

	if err := merged.Sync(); err != nil {
		merged.Close()
		os.Remove(mergedPath)
		s.metrics.RecordUploadMerge(err)
		return nil, fmt.Errorf("sync merged file: %w", err)
	}
	if _, err := merged.Seek(0, io.SeekStart); err != nil {
		merged.Close()
		os.Remove(mergedPath)
		s.metrics.RecordUploadMerge(err)
		return nil, fmt.Errorf("rewind merged file: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn().Err(err).Str("dir", dir).Msg("failed to purge chunk dir after merge")
	}
	s.metrics.RecordUploadMerge(nil)
	s.logger.Info().
		Str("sessionId", sessionID).
		Str("filename", name).
		Int("parts", totalParts).
		Msg("chunked upload merged")

	return &mergedFile{File: merged, path: mergedPath}, nil
}

// Cleanup removes any stored parts for the session.
func (s *Store) Cleanup(sessionID string) error {
	return os.RemoveAll(s.chunkDir(sessionID))
}

// Remove deletes a file previously returned by SaveFile.
func (s *Store) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove uploaded file")
	}
}

func (s *Store) chunkDir(sessionID string) string {
	return filepath.Join(s.root, "chunks_"+sessionID)
}

func partName(name string, index int) string {
	return fmt.Sprintf("%s.part%d", name, index)
}

// sanitize strips any path components from a client-supplied filename.
func sanitize(filename string) (string, error) {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, filename)
	}
	return name, nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func appendPart(dst *os.File, path string) error {
	part, err := os.Open(path)
	if err != nil {
		return err
	}
	defer part.Close()
	_, err = io.Copy(dst, part)
	return err
}

// mergedFile deletes the merged upload when the caller is done with it.
type mergedFile struct {
	*os.File
	path string
}

func (m *mergedFile) Close() error {
	err := m.File.Close()
	os.Remove(m.path)
	return err
}
