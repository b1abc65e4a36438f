package journal

import (
	"errors"
	"io"
	"os"
)

// Reader reads journal entries from log files in order. A corrupted or torn
// entry ends its file; reading continues with the next file.
type Reader struct {
	files   []string // Log files to read
	current int      // Current file index
	fd      *os.File // Current file descriptor
	skipped int      // Files cut short by a bad entry
}

// NewReader creates a journal reader for the given log files
func NewReader(files []string) *Reader {
	return &Reader{files: files}
}

// Open opens the reader
func (r *Reader) Open() error {
	if len(r.files) == 0 {
		return ErrLogNotFound
	}

	fd, err := os.Open(r.files[0])
	if err != nil {
		return err
	}

	r.fd = fd
	return nil
}

// Next reads the next entry, returning io.EOF after the last one
func (r *Reader) Next() (*Entry, error) {
	for {
		entry, err := r.readEntryFromCurrent()
		if err == nil {
			return entry, nil
		}

		if errors.Is(err, ErrCorrupted) || errors.Is(err, ErrTruncated) {
			r.skipped++
		} else if err != io.EOF {
			return nil, err
		}

		if err := r.nextFile(); err != nil {
			return nil, err
		}
	}
}

// Skipped returns how many files ended in a bad entry so far
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) readEntryFromCurrent() (*Entry, error) {
	if r.fd == nil {
		return nil, io.EOF
	}
	return readEntry(r.fd)
}

// nextFile moves to the next log file
func (r *Reader) nextFile() error {
	if r.fd != nil {
		r.fd.Close()
		r.fd = nil
	}

	r.current++
	if r.current >= len(r.files) {
		return io.EOF
	}

	fd, err := os.Open(r.files[r.current])
	if err != nil {
		return err
	}

	r.fd = fd
	return nil
}

// Close closes the reader
func (r *Reader) Close() error {
	if r.fd != nil {
		err := r.fd.Close()
		r.fd = nil
		return err
	}
	return nil
}

// ReadAll reads all entries from all files
func ReadAll(files []string) ([]*Entry, error) {
	reader := NewReader(files)
	if err := reader.Open(); err != nil {
		return nil, err
	}
	defer reader.Close()

	return readAllFrom(reader)
}

func readAllFrom(reader *Reader) ([]*Entry, error) {
	var entries []*Entry
	for {
		entry, err := reader.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
}
