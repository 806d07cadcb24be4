package config

import (
	"io"
	"os"
	"sync"
)

// Storage is the non-volatile area holding the record.
type Storage interface {
	io.ReaderAt
	io.WriterAt
	// Sync commits previous writes.
	Sync() error
}

// FileStorage is an EEPROM-like image file. The file is created on the
// first write.
type FileStorage struct {
	Path string
}

// NewFileStorage creates a FileStorage backed by path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{Path: path}
}

// ReadAt implements io.ReaderAt. A missing file reads as empty.
func (s *FileStorage) ReadAt(p []byte, off int64) (int, error) {
	f, err := os.Open(s.Path)
	if os.IsNotExist(err) {
		return 0, io.EOF
	}
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt.
func (s *FileStorage) WriteAt(p []byte, off int64) (int, error) {
	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return 0, err
	}
	n, err := f.WriteAt(p, off)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Sync implements Storage. Writes are synced as they happen.
func (s *FileStorage) Sync() error {
	return nil
}

// MemStorage keeps the image in memory.
type MemStorage struct {
	// FailWrites makes every write fail, emulating a worn-out device.
	FailWrites bool

	data []byte
	lock sync.Mutex
}

// ReadAt implements io.ReaderAt.
func (s *MemStorage) ReadAt(p []byte, off int64) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt implements io.WriterAt.
func (s *MemStorage) WriteAt(p []byte, off int64) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.FailWrites {
		return 0, io.ErrShortWrite
	}
	if end := off + int64(len(p)); end > int64(len(s.data)) {
		grown := make([]byte, end)
		copy(grown, s.data)
		s.data = grown
	}
	return copy(s.data[off:], p), nil
}

// Sync implements Storage.
func (s *MemStorage) Sync() error {
	return nil
}

// Bytes returns a copy of the image.
func (s *MemStorage) Bytes() []byte {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]byte(nil), s.data...)
}
