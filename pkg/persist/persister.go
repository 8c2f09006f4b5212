package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sumatoshi-tech/bugflow/pkg/series"
)

// ErrMissingRunID is returned when saving a result without a run id.
var ErrMissingRunID = errors.New("result has no run id")

// Persister handles file I/O for one state type using a Codec.
type Persister[T any] struct {
	codec Codec
}

// NewPersister creates a persister with the given codec.
func NewPersister[T any](codec Codec) *Persister[T] {
	return &Persister[T]{codec: codec}
}

// Path returns the file path of basename in dir.
func (p *Persister[T]) Path(dir, basename string) string {
	return filepath.Join(dir, basename+p.codec.Extension())
}

// Save writes state to dir/basename. The file is replaced atomically, so a
// reader never sees a partial write.
func (p *Persister[T]) Save(dir, basename string, state *T) (string, error) {
	path := p.Path(dir, basename)

	tmp, err := os.CreateTemp(dir, "."+basename+"-*")
	if err != nil {
		return "", fmt.Errorf("create state file: %w", err)
	}

	defer os.Remove(tmp.Name())

	err = p.codec.Encode(tmp, state)
	if err != nil {
		tmp.Close()

		return "", fmt.Errorf("encode state: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		return "", fmt.Errorf("close state file: %w", err)
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		return "", fmt.Errorf("rename state file: %w", err)
	}

	return path, nil
}

// Load reads dir/basename into a new T.
func (p *Persister[T]) Load(dir, basename string) (*T, error) {
	file, err := os.Open(p.Path(dir, basename))
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	var state T

	err = p.codec.Decode(file, &state)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	return &state, nil
}

// Archive stores pipeline results keyed by run id.
type Archive struct {
	dir       string
	persister *Persister[series.Result]
}

// NewArchive creates an archive in dir, creating the directory if needed.
func NewArchive(dir string, codec Codec) (*Archive, error) {
	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}

	return &Archive{dir: dir, persister: NewPersister[series.Result](codec)}, nil
}

// Save writes res as <run_id><ext> and returns the file path. Saving the
// same run again overwrites it.
func (a *Archive) Save(res *series.Result) (string, error) {
	if res.RunID == "" {
		return "", ErrMissingRunID
	}

	return a.persister.Save(a.dir, res.RunID, res)
}

// Load reads the result of runID.
func (a *Archive) Load(runID string) (*series.Result, error) {
	return a.persister.Load(a.dir, runID)
}
