package prepare

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileReader reads files referenced by file and form-data bodies
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// DirReader reads files relative to Root. Absolute paths are read as is.
type DirReader struct {
	Root string
}

// ReadFile implements FileReader
func (d DirReader) ReadFile(name string) ([]byte, error) {
	path := name
	if !filepath.IsAbs(path) && d.Root != "" {
		path = filepath.Join(d.Root, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
