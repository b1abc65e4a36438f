package journal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/google/uuid"
)

// OpType represents the type of journal operation
type OpType byte

const (
	// OpCreate records a new session with its initial document
	OpCreate OpType = 1

	// OpRefine records a refinement by parameter boxes
	OpRefine OpType = 2

	// OpRefineElements records a refinement by index boxes
	OpRefineElements OpType = 3

	// OpUniformRefine records a uniform refinement
	OpUniformRefine OpType = 4

	// OpCheckpoint records the full state of a session
	OpCheckpoint OpType = 5

	// OpDrop records the removal of a session
	OpDrop OpType = 6
)

func (op OpType) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpRefine:
		return "REFINE"
	case OpRefineElements:
		return "REFINE_ELEMENTS"
	case OpUniformRefine:
		return "UNIFORM_REFINE"
	case OpCheckpoint:
		return "CHECKPOINT"
	case OpDrop:
		return "DROP"
	}
	return "UNKNOWN"
}

const (
	// EntryHeaderSize is the fixed size of the entry header
	// Layout: LSN(8) + Session(16) + OpType(1) + Reserved(3) + PayloadLen(4) + Timestamp(8)
	EntryHeaderSize = 40

	payloadLenOffset = 28
)

// Entry represents a single journal entry
type Entry struct {
	LSN       uint64    // Log Sequence Number (monotonically increasing)
	Session   uuid.UUID // Session the operation applies to
	OpType    OpType    // Operation type
	Payload   []byte    // Encoded Record
	Timestamp time.Time // Entry timestamp
}

// Encode serializes the entry to bytes with CRC32 checksum
// Format: [Header(40)] [Payload] [CRC32(4)]
func (e *Entry) Encode() []byte {
	buf := make([]byte, e.Size())

	binary.LittleEndian.PutUint64(buf[0:8], e.LSN)
	copy(buf[8:24], e.Session[:])
	buf[24] = byte(e.OpType)
	// bytes 25-27 are reserved
	binary.LittleEndian.PutUint32(buf[payloadLenOffset:32], uint32(len(e.Payload)))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(e.Timestamp.UnixNano()))

	offset := EntryHeaderSize
	copy(buf[offset:], e.Payload)
	offset += len(e.Payload)

	crc := crc32.ChecksumIEEE(buf[:offset])
	binary.LittleEndian.PutUint32(buf[offset:offset+4], crc)

	return buf
}

// DecodeEntry deserializes a journal entry from bytes
func DecodeEntry(data []byte) (*Entry, error) {
	if len(data) < EntryHeaderSize+4 {
		return nil, ErrTruncated
	}

	payloadLen := int(binary.LittleEndian.Uint32(data[payloadLenOffset:32]))
	expectedSize := EntryHeaderSize + payloadLen + 4
	if len(data) < expectedSize {
		return nil, ErrTruncated
	}
	data = data[:expectedSize]

	storedCRC := binary.LittleEndian.Uint32(data[expectedSize-4:])
	if storedCRC != crc32.ChecksumIEEE(data[:expectedSize-4]) {
		return nil, ErrCorrupted
	}

	entry := &Entry{
		LSN:       binary.LittleEndian.Uint64(data[0:8]),
		OpType:    OpType(data[24]),
		Timestamp: time.Unix(0, int64(binary.LittleEndian.Uint64(data[32:40]))),
	}
	copy(entry.Session[:], data[8:24])

	if payloadLen > 0 {
		entry.Payload = make([]byte, payloadLen)
		copy(entry.Payload, data[EntryHeaderSize:EntryHeaderSize+payloadLen])
	}

	return entry, nil
}

// Size returns the encoded size of the entry
func (e *Entry) Size() int {
	return EntryHeaderSize + len(e.Payload) + 4
}

// String returns a human-readable representation of the entry
func (e *Entry) String() string {
	return fmt.Sprintf("JOURNAL[LSN=%d Session=%s Op=%s PayloadLen=%d]",
		e.LSN, e.Session, e.OpType, len(e.Payload))
}
