package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Entry is a lazily listed directory, used for walking sysfs trees.
type Entry struct {
	path string

	listed      bool
	dirs, files map[string]Entry
}

func NewEntry(path string) Entry {
	return Entry{
		path: path,
	}
}

func (e *Entry) list() error {
	fd, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("cannot open \"%s\" file: %s", e.path, err)
	}
	defer fd.Close()

	info, err := fd.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat \"%s\" file: %s", e.path, err)
	}
	if !info.IsDir() {
		newPath, err := filepath.EvalSymlinks(e.path)
		if err != nil {
			return fmt.Errorf("cannot resolve symlink: %s", err)
		}

		fd, err = os.Open(newPath)
		if err != nil {
			return fmt.Errorf("cannot open \"%s\" file: %s", newPath, err)
		}
		defer fd.Close()
	}

	entries, err := fd.ReadDir(0)
	if err != nil {
		return fmt.Errorf("cannot read \"%s\" directory: %s", fd.Name(), err)
	}

	var dirs, files = make(map[string]Entry), make(map[string]Entry, 0)

	for _, entry := range entries {
		path := filepath.Join(e.path, entry.Name())
		if entry.IsDir() {
			dirs[entry.Name()] = NewEntry(path)
			continue
		}
		// sysfs exposes devices as symlinks to directories
		stat, err := os.Stat(path)
		if err == nil && stat.IsDir() {
			dirs[entry.Name()] = NewEntry(path)
		} else {
			files[entry.Name()] = NewEntry(path)
		}
	}
	e.dirs = dirs
	e.files = files
	e.listed = true
	return nil
}

func (e *Entry) Dirs() (map[string]Entry, error) {
	if !e.listed {
		err := e.list()
		if err != nil {
			return map[string]Entry{}, err
		}
	}
	return e.dirs, nil
}

func (e *Entry) Files() (map[string]Entry, error) {
	if !e.listed {
		err := e.list()
		if err != nil {
			return map[string]Entry{}, err
		}
	}
	return e.files, nil
}

// HasFiles tells if all given files are present in the directory.
func (e *Entry) HasFiles(names ...string) bool {
	files, err := e.Files()
	if err != nil {
		return false
	}
	for _, name := range names {
		if _, ok := files[name]; !ok {
			return false
		}
	}
	return true
}

func (e Entry) Path() string {
	return e.path
}

func (e Entry) Name() string {
	return filepath.Base(e.path)
}

// ReadString reads an attribute file, trimming surrounding whitespace.
func ReadString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read \"%s\" file: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadFloat reads a single numeric value from a file.
func ReadFloat(path string) (float64, error) {
	s, err := ReadString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse \"%s\" file: %w", path, err)
	}
	return v, nil
}

// ReadFloats reads whitespace separated numeric values from a file.
func ReadFloats(path string) ([]float64, error) {
	s, err := ReadString(path)
	if err != nil {
		return nil, err
	}
	var values []float64
	for _, field := range strings.Fields(s) {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("cannot parse \"%s\" file: %w", path, err)
		}
		values = append(values, v)
	}
	return values, nil
}
