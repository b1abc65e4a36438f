package journal

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxFileSize is the default maximum size of a single journal file (64MB)
	DefaultMaxFileSize = 64 << 20

	// MaxPayloadSize bounds the payload length accepted when reading
	MaxPayloadSize = 256 << 20
)

// Journal is an append-only refinement log split over numbered files
type Journal struct {
	// Path is the base path for journal files (e.g., "/data/hsplines.journal")
	Path string

	// MaxFileSize triggers rotation; zero means DefaultMaxFileSize
	MaxFileSize int64

	// SyncWrites fsyncs after every Append
	SyncWrites bool

	// fd is the current log file descriptor
	fd *os.File

	// mu protects concurrent access to the journal
	mu sync.Mutex

	// lsn is the current Log Sequence Number (atomic)
	lsn uint64

	// fileSize is the current log file size
	fileSize int64

	// fileIndex is the current log file index (0, 1, 2, ...)
	fileIndex int

	// closed indicates whether the journal is closed
	closed bool
}

// Open opens or creates the journal
func (j *Journal) Open() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := j.findLogFiles()
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if len(files) > 0 {
		latestFile := files[len(files)-1]
		fd, err := os.OpenFile(latestFile, os.O_RDWR|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		j.fd = fd

		j.fileIndex = j.fileIndexOf(latestFile)

		maxLSN, validEnd, err := j.scanForHighestLSN(files)
		if err != nil {
			return err
		}
		atomic.StoreUint64(&j.lsn, maxLSN)

		// drop a torn tail so that new entries stay readable
		stat, err := fd.Stat()
		if err != nil {
			return err
		}
		if stat.Size() > validEnd {
			if err := fd.Truncate(validEnd); err != nil {
				return err
			}
		}
		j.fileSize = validEnd
	} else {
		logPath := j.logFilePath(0)
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return err
		}
		fd, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		j.fd = fd
		j.fileSize = 0
		j.fileIndex = 0
		atomic.StoreUint64(&j.lsn, 0)
	}

	j.closed = false
	return nil
}

// NextLSN returns the next Log Sequence Number
func (j *Journal) NextLSN() uint64 {
	return atomic.AddUint64(&j.lsn, 1)
}

// LastLSN returns the most recently assigned Log Sequence Number
func (j *Journal) LastLSN() uint64 {
	return atomic.LoadUint64(&j.lsn)
}

// Append writes a record for session and returns its LSN
func (j *Journal) Append(session uuid.UUID, rec Record) (uint64, error) {
	entry := Entry{
		LSN:       j.NextLSN(),
		Session:   session,
		OpType:    rec.Op,
		Payload:   rec.Encode(),
		Timestamp: time.Now(),
	}
	if err := j.Write(entry); err != nil {
		return 0, err
	}
	if j.SyncWrites {
		if err := j.Fsync(); err != nil {
			return 0, err
		}
	}
	return entry.LSN, nil
}

// Write writes an entry to the journal
func (j *Journal) Write(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return ErrLogClosed
	}

	data := entry.Encode()

	if j.fileSize > 0 && j.fileSize+int64(len(data)) > j.maxFileSize() {
		if err := j.rotateNoLock(); err != nil {
			return err
		}
	}

	n, err := j.fd.Write(data)
	if err != nil {
		return err
	}

	j.fileSize += int64(n)
	return nil
}

// Fsync ensures all written data is persisted to disk
func (j *Journal) Fsync() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return ErrLogClosed
	}

	return j.fd.Sync()
}

// Close closes the journal
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed || j.fd == nil {
		return nil
	}

	err := j.fd.Close()
	j.closed = true
	return err
}

// Files returns the journal files sorted by index
func (j *Journal) Files() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.findLogFiles()
}

func (j *Journal) maxFileSize() int64 {
	if j.MaxFileSize > 0 {
		return j.MaxFileSize
	}
	return DefaultMaxFileSize
}

// rotateNoLock rotates to a new log file (caller must hold mu)
func (j *Journal) rotateNoLock() error {
	if err := j.fd.Sync(); err != nil {
		return err
	}
	if err := j.fd.Close(); err != nil {
		return err
	}

	j.fileIndex++
	fd, err := os.OpenFile(j.logFilePath(j.fileIndex), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	j.fd = fd
	j.fileSize = 0
	return nil
}

// removeBeforeNoLock removes every log file with an index below index
// (caller must hold mu)
func (j *Journal) removeBeforeNoLock(index int) error {
	files, err := j.findLogFiles()
	if err != nil {
		return err
	}
	for _, f := range files {
		if j.fileIndexOf(f) < index {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

// baseName returns the base filename for journal files
func (j *Journal) baseName() string {
	return filepath.Base(j.Path)
}

// logFilePath returns the path for a log file with the given index
func (j *Journal) logFilePath(index int) string {
	dir := filepath.Dir(j.Path)
	name := fmt.Sprintf("%s.%03d", j.baseName(), index)
	return filepath.Join(dir, name)
}

func (j *Journal) fileIndexOf(path string) int {
	var index int
	if _, err := fmt.Sscanf(filepath.Base(path), j.baseName()+".%d", &index); err != nil {
		return 0
	}
	return index
}

// findLogFiles returns all journal files sorted by index
func (j *Journal) findLogFiles() ([]string, error) {
	dir := filepath.Dir(j.Path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && j.isLogFile(entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(files, func(a, b int) bool {
		return j.fileIndexOf(files[a]) < j.fileIndexOf(files[b])
	})

	return files, nil
}

// isLogFile returns true if the filename is a journal file for this path
func (j *Journal) isLogFile(name string) bool {
	var index int
	_, err := fmt.Sscanf(name, j.baseName()+".%d", &index)
	return err == nil
}

// scanForHighestLSN scans all journal files and returns the highest LSN and
// the end of the last intact entry of the final file
func (j *Journal) scanForHighestLSN(files []string) (maxLSN uint64, validEnd int64, err error) {
	for _, file := range files {
		fd, err := os.Open(file)
		if err != nil {
			return 0, 0, err
		}

		validEnd = 0
		for {
			entry, err := readEntry(fd)
			if err != nil {
				// end of file, or a torn tail
				break
			}
			validEnd += int64(entry.Size())
			if entry.LSN > maxLSN {
				maxLSN = entry.LSN
			}
		}

		fd.Close()
	}

	return maxLSN, validEnd, nil
}

// readEntry reads a single entry from the reader
func readEntry(r io.Reader) (*Entry, error) {
	header := make([]byte, EntryHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, ErrTruncated
		}
		return nil, err
	}

	payloadLen := binary.LittleEndian.Uint32(header[payloadLenOffset:32])
	if payloadLen > MaxPayloadSize {
		return nil, ErrCorrupted
	}

	data := make([]byte, EntryHeaderSize+int(payloadLen)+4)
	copy(data, header)
	if _, err := io.ReadFull(r, data[EntryHeaderSize:]); err != nil {
		return nil, ErrTruncated
	}

	return DecodeEntry(data)
}
