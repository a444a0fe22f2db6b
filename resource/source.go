package resource

import (
	"io/fs"
	"os"
	"time"
)

// SourceReader returns shader text and its last modification time.
type SourceReader interface {
	ReadSource(path string) (string, time.Time, error)
}

// FileSource reads shader sources from the local file system.
type FileSource struct{}

func (FileSource) ReadSource(path string) (string, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", time.Time{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", time.Time{}, err
	}
	return string(b), info.ModTime(), nil
}

// FSSource reads shader sources from an fs.FS such as an embedded tree.
type FSSource struct {
	FS fs.FS
}

func (s FSSource) ReadSource(path string) (string, time.Time, error) {
	b, err := fs.ReadFile(s.FS, path)
	if err != nil {
		return "", time.Time{}, err
	}
	var mod time.Time
	if info, err := fs.Stat(s.FS, path); err == nil {
		mod = info.ModTime()
	}
	return string(b), mod, nil
}
