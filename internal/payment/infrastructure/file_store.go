package infrastructure

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	paymentErrors "github.com/avika/achexport/internal/payment/errors"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// FileStore publishes batch files under <root>/<YYYY-MM-DD>/run-<NNN>.csv.
// A file becomes visible only once it is completely written.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("could not resolve export root %q: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &FileStore{root: abs}, nil
}

func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) Path(date time.Time, run int) string {
	return filepath.Join(s.root, date.Format("2006-01-02"), fmt.Sprintf("run-%03d.csv", run))
}

// Publish writes records to a temporary file next to the target and then
// hard-links it into place. The link fails if the target exists, so a run is
// never overwritten. On any failure nothing is left at the target path.
func (s *FileStore) Publish(date time.Time, run int, records [][]string) (path string, err error) {
	target := s.Path(date, run)
	dir := filepath.Dir(target)

	if _, statErr := os.Stat(target); statErr == nil {
		return "", paymentErrors.ErrRunExists
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("could not create batch directory: %w", err)
	}
	defer func() {
		if err != nil {
			// only succeeds when the directory is still empty
			_ = os.Remove(dir)
		}
	}()

	tmp, err := os.CreateTemp(dir, "."+strings.TrimSuffix(filepath.Base(target), ".csv")+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("could not create temporary batch file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeRecords(tmp, records); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("could not close temporary batch file: %w", err)
	}

	if err := os.Link(tmpName, target); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", paymentErrors.ErrRunExists
		}
		return "", fmt.Errorf("could not publish batch file: %w", err)
	}
	return target, nil
}

func writeRecords(f *os.File, records [][]string) error {
	if err := f.Chmod(filePerm); err != nil {
		return fmt.Errorf("could not restrict batch file permissions: %w", err)
	}
	w := csv.NewWriter(f)
	w.UseCRLF = true
	if err := w.WriteAll(records); err != nil {
		return fmt.Errorf("could not write batch records: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("could not sync batch file: %w", err)
	}
	return nil
}

// Resolve returns the absolute, symlink-free form of path if it lies inside
// the export root. Paths that do not exist yet are checked lexically.
func (s *FileStore) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", paymentErrors.NewValidationError("file_path", "is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", paymentErrors.NewValidationError("file_path", "is not a valid path")
	}

	root := s.root
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	resolved, err := filepath.EvalSymlinks(abs)
	switch {
	case err == nil:
		abs = resolved
	case errors.Is(err, fs.ErrNotExist):
		// missing files are reported by the caller
	default:
		return "", paymentErrors.NewValidationError("file_path", "is not a valid path")
	}

	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", paymentErrors.NewValidationError("file_path", "must be inside the export directory")
	}
	return abs, nil
}
