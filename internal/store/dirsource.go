package store

import (
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4/source"
)

// migrationFile is one schema file and its position in apply order.
type migrationFile struct {
	version uint
	name    string
}

// dirSource serves plain .sql files to golang-migrate. Files are applied in
// lexicographic name order and each file's version is its 1-based position.
// There are no down migrations.
type dirSource struct {
	fsys  fs.FS
	files []migrationFile
}

var _ source.Driver = (*dirSource)(nil)

// listMigrations returns the .sql files at the root of fsys sorted by name.
func listMigrations(fsys fs.FS) ([]migrationFile, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, ".down.sql") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	files := make([]migrationFile, len(names))
	for i, name := range names {
		files[i] = migrationFile{version: uint(i + 1), name: name}
	}
	return files, nil
}

func newDirSource(fsys fs.FS, files []migrationFile) *dirSource {
	return &dirSource{fsys: fsys, files: files}
}

// name returns the file name for version, or "".
func (s *dirSource) name(version uint) string {
	if version == 0 || int(version) > len(s.files) {
		return ""
	}
	return s.files[version-1].name
}

func (s *dirSource) Open(string) (source.Driver, error) {
	return s, nil
}

func (s *dirSource) Close() error {
	return nil
}

func (s *dirSource) First() (uint, error) {
	if len(s.files) == 0 {
		return 0, &fs.PathError{Op: "first", Path: ".", Err: fs.ErrNotExist}
	}
	return s.files[0].version, nil
}

func (s *dirSource) Prev(version uint) (uint, error) {
	if version <= 1 || int(version) > len(s.files) {
		return 0, &fs.PathError{Op: "prev", Path: s.name(version), Err: fs.ErrNotExist}
	}
	return version - 1, nil
}

func (s *dirSource) Next(version uint) (uint, error) {
	if int(version) >= len(s.files) {
		return 0, &fs.PathError{Op: "next", Path: s.name(version), Err: fs.ErrNotExist}
	}
	return version + 1, nil
}

func (s *dirSource) ReadUp(version uint) (io.ReadCloser, string, error) {
	name := s.name(version)
	if name == "" {
		return nil, "", &fs.PathError{Op: "read up", Path: ".", Err: fs.ErrNotExist}
	}
	f, err := s.fsys.Open(name)
	if err != nil {
		return nil, "", err
	}
	return f, strings.TrimSuffix(name, ".sql"), nil
}

func (s *dirSource) ReadDown(version uint) (io.ReadCloser, string, error) {
	return nil, "", &fs.PathError{Op: "read down", Path: s.name(version), Err: fs.ErrNotExist}
}
