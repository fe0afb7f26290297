//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package diskstore

import (
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// openMmapFile opens or creates path and maps it into memory. If
// initialSize exceeds the file's current size, the file is extended
// first.
func openMmapFile(path string, initialSize int64) (*mmapFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := stat.Size()
	if initialSize > size {
		if err := f.Truncate(initialSize); err != nil {
			f.Close()
			return nil, err
		}
		size = initialSize
	}

	if size == 0 {
		f.Close()
		return nil, errors.New("diskstore: cannot mmap empty file")
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &mmapFile{file: f, data: data, size: size}, nil
}

// Sync flushes changes to disk.
func (m *mmapFile) Sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

// Grow extends the file and remaps it.
func (m *mmapFile) Grow(newSize int64) error {
	if newSize <= m.size {
		return nil
	}

	// Writes under MAP_SHARED land in the page cache but may not be on
	// disk yet; sync before unmapping so they aren't lost.
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return err
	}

	if err := syscall.Munmap(m.data); err != nil {
		return err
	}

	f := m.file.(*os.File)

	if err := f.Truncate(newSize); err != nil {
		return err
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(newSize),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return err
	}

	m.data = data
	m.size = newSize
	return nil
}

// Close unmaps and closes the file.
func (m *mmapFile) Close() error {
	var firstErr error

	if m.data != nil {
		if err := syscall.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}

	if m.file != nil {
		f := m.file.(*os.File)
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}

	return firstErr
}
