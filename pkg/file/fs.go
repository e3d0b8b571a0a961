package file

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
)

// ErrNotMounted indicates the volume is not mounted.
var ErrNotMounted = errors.New("volume not mounted")

// Usage is the size of a volume in bytes.
type Usage struct {
	Total uint64
	Free  uint64
}

// FS is a mountable volume. Names are slash separated and relative to
// the volume root.
type FS interface {
	Mount() error
	Unmount() error
	// CreateFile writes data to a new file and fails with fs.ErrExist
	// when name exists.
	CreateFile(name string, data []byte) error
	// AppendFile writes data at the end of an existing file.
	AppendFile(name string, data []byte) error
	Mkdir(name string) error
	// ReadFile reads at most max bytes from the start of a file.
	ReadFile(name string, max int) ([]byte, error)
	// Remove deletes a file or an empty directory.
	Remove(name string) error
	// Walk calls fn for every regular file under dir, skipping entries
	// whose name starts with a dot.
	Walk(dir string, fn func(name string) error) error
	Usage() (Usage, error)
}

// DirFS is a volume backed by a host directory.
type DirFS struct {
	Root string

	lock    sync.Mutex
	mounted bool
}

// NewDirFS creates a DirFS.
func NewDirFS(root string) *DirFS {
	return &DirFS{Root: root}
}

// Mount implements FS.
func (d *DirFS) Mount() error {
	info, err := os.Stat(d.Root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "mount", Path: d.Root, Err: fs.ErrInvalid}
	}
	d.lock.Lock()
	d.mounted = true
	d.lock.Unlock()
	return nil
}

// Unmount implements FS.
func (d *DirFS) Unmount() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.mounted {
		return ErrNotMounted
	}
	d.mounted = false
	return nil
}

// Mounted indicates the volume is mounted.
func (d *DirFS) Mounted() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.mounted
}

func (d *DirFS) resolve(name string) (string, error) {
	if !d.Mounted() {
		return "", ErrNotMounted
	}
	return filepath.Join(d.Root, filepath.FromSlash(path.Clean("/"+name))), nil
}

// CreateFile implements FS.
func (d *DirFS) CreateFile(name string, data []byte) error {
	return d.write(name, data, os.O_CREATE|os.O_EXCL|os.O_WRONLY)
}

// AppendFile implements FS.
func (d *DirFS) AppendFile(name string, data []byte) error {
	return d.write(name, data, os.O_APPEND|os.O_WRONLY)
}

func (d *DirFS) write(name string, data []byte, flags int) error {
	fn, err := d.resolve(name)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(fn, flags, 0644)
	if err != nil {
		return err
	}
	if _, err = f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Mkdir implements FS.
func (d *DirFS) Mkdir(name string) error {
	fn, err := d.resolve(name)
	if err != nil {
		return err
	}
	return os.Mkdir(fn, 0755)
}

// ReadFile implements FS.
func (d *DirFS) ReadFile(name string, max int) ([]byte, error) {
	fn, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, max)
	n, err := io.ReadFull(f, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	return buf[:n], err
}

// Remove implements FS.
func (d *DirFS) Remove(name string) error {
	fn, err := d.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(fn)
}

// Walk implements FS.
func (d *DirFS) Walk(dir string, fn func(name string) error) error {
	root, err := d.resolve(dir)
	if err != nil {
		return err
	}
	return d.walk(root, path.Clean("/"+dir), fn)
}

func (d *DirFS) walk(dir, name string, fn func(string) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if e.Name()[0] == '.' {
			continue
		}
		sub := path.Join(name, e.Name())
		if e.IsDir() {
			if err := d.walk(filepath.Join(dir, e.Name()), sub, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(sub); err != nil {
			return err
		}
	}
	return nil
}

// Usage implements FS.
func (d *DirFS) Usage() (Usage, error) {
	fn, err := d.resolve("/")
	if err != nil {
		return Usage{}, err
	}
	return volumeUsage(fn)
}
