// Package defstore keeps exercise definition bundles, submitted files
// and persisted verdicts on the local filesystem.
//
// Layout under the store root:
//
//	exercises/<agency>/<department>/<name>/<version>/<hash>/  one bundle
//	submissions/<submission-id>/                              submitted file, result
package defstore

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/plags-org/judge/internal/exercise"
)

var (
	// ErrExerciseExists rejects re-uploading an already installed
	// bundle. Content under one identity is immutable.
	ErrExerciseExists = errors.New("exercise bundle already exists")

	// ErrNotFound reports a missing exercise, submission or result.
	ErrNotFound = errors.New("not found")
)

const resultFileName = "result.json.zst"

type Store struct {
	root   string
	logger *slog.Logger
}

func NewStore(root string, logger *slog.Logger) (*Store, error) {
	for _, sub := range []string{"exercises", "submissions", "tmp"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return &Store{root: root, logger: logger}, nil
}

// ExerciseDir returns the bundle directory for id. The identity must
// have been validated; its parts become path segments.
func (s *Store) ExerciseDir(id exercise.Identity) string {
	return filepath.Join(s.root, "exercises",
		id.Agency, id.Department, id.Name, id.Version, id.ContentHash)
}

// Exists reports whether a validated bundle is installed under id.
func (s *Store) Exists(id exercise.Identity) (bool, error) {
	if err := id.Validate(); err != nil {
		return false, err
	}
	info, err := os.Stat(s.ExerciseDir(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat exercise dir: %w", err)
	}
	return info.IsDir(), nil
}

// InstallBundle validates and installs an extracted bundle directory
// under id. The bundle is staged next to its final location and moved
// in with a single rename, so a crash never leaves a half installed
// bundle visible.
func (s *Store) InstallBundle(id exercise.Identity, stagedDir string) (*exercise.Definition, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	exists, err := s.Exists(id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", id.String(), ErrExerciseExists)
	}

	def, err := exercise.ValidateBundleDir(stagedDir)
	if err != nil {
		return nil, err
	}

	target := s.ExerciseDir(id)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create exercise parent dir: %w", err)
	}
	if err := os.Rename(stagedDir, target); err != nil {
		return nil, fmt.Errorf("failed to install bundle: %w", err)
	}
	s.logger.Info("exercise bundle installed", "exercise", id.String())
	return def, nil
}

// LoadDefinition loads and revalidates the installed definition of id.
func (s *Store) LoadDefinition(id exercise.Identity) (*exercise.Definition, error) {
	exists, err := s.Exists(id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("exercise %s: %w", id.String(), ErrNotFound)
	}
	return exercise.LoadDir(s.ExerciseDir(id))
}

// TempDir creates a scratch directory inside the store, on the same
// filesystem as the final locations so renames stay atomic.
func (s *Store) TempDir(pattern string) (string, error) {
	return os.MkdirTemp(filepath.Join(s.root, "tmp"), pattern)
}

func (s *Store) submissionDir(submissionID string) string {
	return filepath.Join(s.root, "submissions", submissionID)
}

// SaveSubmission stores one submitted file under submissionID and
// returns its path.
func (s *Store) SaveSubmission(submissionID, filename string, r io.Reader) (string, error) {
	dir := s.submissionDir(submissionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create submission dir: %w", err)
	}

	path := filepath.Join(dir, filepath.Base(filename))
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create submission file: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to write submission file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write submission file: %w", err)
	}
	return path, nil
}

// SubmissionPath returns the stored file of submissionID.
func (s *Store) SubmissionPath(submissionID string) (string, error) {
	entries, err := os.ReadDir(s.submissionDir(submissionID))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read submission dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && entry.Name() != resultFileName {
			return filepath.Join(s.submissionDir(submissionID), entry.Name()), nil
		}
	}
	return "", fmt.Errorf("submission %s has no stored file: %w", submissionID, ErrNotFound)
}

// SaveResult persists the verdict payload of a submission, compressed
// at rest. A completed evaluation overwrites any earlier payload.
func (s *Store) SaveResult(submissionID string, payload []byte) error {
	dir := s.submissionDir(submissionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create submission dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(payload, make([]byte, 0, len(payload)))

	tmp := filepath.Join(dir, resultFileName+".tmp")
	if err := os.WriteFile(tmp, compressed, 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, resultFileName)); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	return nil
}

// LoadResult returns the persisted verdict payload of a submission.
func (s *Store) LoadResult(submissionID string) ([]byte, error) {
	compressed, err := os.ReadFile(filepath.Join(s.submissionDir(submissionID), resultFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("result for submission %s: %w", submissionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress result: %w", err)
	}
	return payload, nil
}
