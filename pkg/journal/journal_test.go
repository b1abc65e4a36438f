package journal

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/hsplines/pkg/bspline"
	"github.com/nainya/hsplines/pkg/codec"
	"github.com/nainya/hsplines/pkg/hbasis"
)

func newBasis(t *testing.T, mode hbasis.Mode) *hbasis.Basis {
	t.Helper()
	tb, err := bspline.NewTensorBasis(
		bspline.MustBasis(bspline.Clamped(0, 1, 3, 2), 2),
		bspline.MustBasis(bspline.Clamped(0, 1, 3, 2), 2),
	)
	if err != nil {
		t.Fatal(err)
	}
	return hbasis.New(tb, hbasis.WithMode(mode))
}

func openJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.journal")
	j := &Journal{Path: path}
	if err := j.Open(); err != nil {
		t.Fatal(err)
	}
	return j, path
}

func TestEntryEncodeDecode(t *testing.T) {
	entry := &Entry{
		LSN:       42,
		Session:   uuid.New(),
		OpType:    OpRefine,
		Payload:   []byte("payload"),
		Timestamp: time.Now(),
	}

	decoded, err := DecodeEntry(entry.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decoded.LSN != entry.LSN {
		t.Errorf("LSN mismatch: got %d, want %d", decoded.LSN, entry.LSN)
	}
	if decoded.Session != entry.Session {
		t.Errorf("Session mismatch: got %s, want %s", decoded.Session, entry.Session)
	}
	if decoded.OpType != entry.OpType {
		t.Errorf("OpType mismatch: got %s, want %s", decoded.OpType, entry.OpType)
	}
	if string(decoded.Payload) != string(entry.Payload) {
		t.Errorf("Payload mismatch: got %s, want %s", decoded.Payload, entry.Payload)
	}
	if !decoded.Timestamp.Equal(entry.Timestamp.Round(0)) {
		t.Errorf("Timestamp mismatch: got %v, want %v", decoded.Timestamp, entry.Timestamp)
	}
}

func TestEntryEncodeDecodeEmptyPayload(t *testing.T) {
	entry := &Entry{LSN: 10, OpType: OpUniformRefine, Timestamp: time.Now()}

	decoded, err := DecodeEntry(entry.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.Payload) != 0 {
		t.Errorf("expected empty payload, got %d bytes", len(decoded.Payload))
	}
}

func TestDecodeEntryCorrupted(t *testing.T) {
	entry := &Entry{LSN: 1, OpType: OpRefine, Payload: []byte("boxes"), Timestamp: time.Now()}
	data := entry.Encode()

	data[EntryHeaderSize] ^= 0xff
	if _, err := DecodeEntry(data); !errors.Is(err, ErrCorrupted) {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}

	if _, err := DecodeEntry(data[:EntryHeaderSize+2]); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}

func TestJournalAppendRead(t *testing.T) {
	j, _ := openJournal(t)
	session := uuid.New()

	numEntries := 50
	for i := 0; i < numEntries; i++ {
		rec := RefineElements(hbasis.IndexBox{Level: 1, Lower: []int{i, 0}, Upper: []int{i + 1, 1}})
		if _, err := j.Append(session, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := j.Fsync(); err != nil {
		t.Fatal(err)
	}
	j.Close()

	files, _ := j.Files()
	entries, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != numEntries {
		t.Fatalf("expected %d entries, got %d", numEntries, len(entries))
	}
	for i, entry := range entries {
		if entry.LSN != uint64(i+1) {
			t.Errorf("entry %d: LSN %d", i, entry.LSN)
		}
		rec, err := DecodeRecord(entry.OpType, entry.Payload)
		if err != nil {
			t.Fatal(err)
		}
		if rec.IndexBoxes[0].Lower[0] != i {
			t.Errorf("entry %d: box %v", i, rec.IndexBoxes[0])
		}
	}
}

func TestJournalClosed(t *testing.T) {
	j, _ := openJournal(t)
	j.Close()

	if _, err := j.Append(uuid.New(), UniformRefine()); !errors.Is(err, ErrLogClosed) {
		t.Errorf("expected ErrLogClosed, got %v", err)
	}
	if err := j.Fsync(); !errors.Is(err, ErrLogClosed) {
		t.Errorf("expected ErrLogClosed, got %v", err)
	}
}

func TestJournalReopenDropsTornTail(t *testing.T) {
	j, path := openJournal(t)
	session := uuid.New()
	for i := 0; i < 3; i++ {
		j.Append(session, UniformRefine())
	}
	j.Close()

	// simulate a crash in the middle of a write
	fd, err := os.OpenFile(path+".000", os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatal(err)
	}
	fd.Write(make([]byte, EntryHeaderSize/2))
	fd.Close()

	j2 := &Journal{Path: path}
	if err := j2.Open(); err != nil {
		t.Fatal(err)
	}
	if j2.LastLSN() != 3 {
		t.Errorf("expected LSN 3 after reopen, got %d", j2.LastLSN())
	}
	if lsn, err := j2.Append(session, UniformRefine()); err != nil || lsn != 4 {
		t.Fatalf("append after reopen: lsn %d, err %v", lsn, err)
	}
	j2.Close()

	files, _ := j2.Files()
	entries, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Errorf("expected 4 entries, got %d", len(entries))
	}
}

func TestJournalRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.journal")
	j := &Journal{Path: path, MaxFileSize: 256}
	if err := j.Open(); err != nil {
		t.Fatal(err)
	}
	session := uuid.New()
	for i := 0; i < 20; i++ {
		if _, err := j.Append(session, Refine(2, 0, hbasis.ParamBox{Lower: []float64{0.1, 0.2}, Upper: []float64{0.3, 0.4}})); err != nil {
			t.Fatal(err)
		}
	}
	j.Close()

	files, _ := j.Files()
	if len(files) < 2 {
		t.Fatalf("expected rotation, got %d files", len(files))
	}
	entries, err := ReadAll(files)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 20 {
		t.Errorf("expected 20 entries across files, got %d", len(entries))
	}
}

func TestReaderSkipsCorruptedTail(t *testing.T) {
	j, path := openJournal(t)
	session := uuid.New()
	j.Append(session, UniformRefine())
	j.Append(session, UniformRefine())
	j.Close()

	data, err := os.ReadFile(path + ".000")
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path+".000", data, 0644); err != nil {
		t.Fatal(err)
	}

	reader := NewReader([]string{path + ".000"})
	if err := reader.Open(); err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	entries, err := readAllFrom(reader)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 intact entry, got %d", len(entries))
	}
	if reader.Skipped() != 1 {
		t.Errorf("expected 1 skipped file, got %d", reader.Skipped())
	}
}

func TestReaderNoFiles(t *testing.T) {
	if _, err := ReadAll(nil); !errors.Is(err, ErrLogNotFound) {
		t.Errorf("expected ErrLogNotFound, got %v", err)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	doc := codec.FromBasis(newBasis(t, hbasis.Truncated))
	records := []Record{
		Create(doc),
		Refine(3, 2, hbasis.ParamBox{Lower: []float64{0, 0.5}, Upper: []float64{0.25, 1}}),
		RefineElements(hbasis.IndexBox{Level: 2, Lower: []int{1, 2}, Upper: []int{3, 4}}),
		UniformRefine(),
		Drop(),
	}
	for _, rec := range records {
		got, err := DecodeRecord(rec.Op, rec.Encode())
		if err != nil {
			t.Fatalf("%s: %v", rec.Op, err)
		}
		if got.Op != rec.Op || got.Extension != rec.Extension || got.Grid != rec.Grid || got.RefLevel != rec.RefLevel {
			t.Errorf("%s: got %+v, want %+v", rec.Op, got, rec)
		}
		if len(got.ParamBoxes) != len(rec.ParamBoxes) || len(got.IndexBoxes) != len(rec.IndexBoxes) {
			t.Errorf("%s: box count mismatch", rec.Op)
		}
	}

	if _, err := DecodeRecord(OpType(99), nil); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestApplyRejectsBadBoxes(t *testing.T) {
	b := newBasis(t, hbasis.Hierarchical)
	rec := Refine(b.RefineLevel(), 0, hbasis.ParamBox{Lower: []float64{0, 0}, Upper: []float64{2, 2}})
	if err := rec.Apply(b); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}
	if err := Drop().Apply(b); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry for drop, got %v", err)
	}
}

// live mirrors the operations written to a journal
type live struct {
	t        *testing.T
	j        *Journal
	sessions map[uuid.UUID]*hbasis.Basis
}

func (l *live) create(mode hbasis.Mode) uuid.UUID {
	id := uuid.New()
	b := newBasis(l.t, mode)
	l.sessions[id] = b
	if _, err := l.j.Append(id, Create(codec.FromBasis(b))); err != nil {
		l.t.Fatal(err)
	}
	return id
}

func (l *live) apply(id uuid.UUID, rec Record) {
	if err := rec.Apply(l.sessions[id]); err != nil {
		l.t.Fatal(err)
	}
	if _, err := l.j.Append(id, rec); err != nil {
		l.t.Fatal(err)
	}
}

func (l *live) visit(emit EmitFunc) error {
	for id, b := range l.sessions {
		if err := emit(id, b); err != nil {
			return err
		}
	}
	return nil
}

func assertSameSessions(t *testing.T, want, got map[uuid.UUID]*hbasis.Basis) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d sessions, got %d", len(want), len(got))
	}
	for id, w := range want {
		g, ok := got[id]
		if !ok {
			t.Fatalf("session %s missing", id)
		}
		if g.Mode() != w.Mode() || g.Size() != w.Size() {
			t.Errorf("session %s: got %v, want %v", id, g, w)
		}
		for l := 0; l <= w.TreeLevel(); l++ {
			ga, wa := g.ActiveSet(l), w.ActiveSet(l)
			if len(ga) != len(wa) {
				t.Errorf("session %s level %d: %d active, want %d", id, l, len(ga), len(wa))
			}
		}
	}
}

func TestRebuildReproducesSessions(t *testing.T) {
	j, path := openJournal(t)
	l := &live{t: t, j: j, sessions: make(map[uuid.UUID]*hbasis.Basis)}

	a := l.create(hbasis.Hierarchical)
	b := l.create(hbasis.Truncated)
	gone := l.create(hbasis.Hierarchical)

	l.apply(a, Refine(l.sessions[a].RefineLevel(), 0, hbasis.ParamBox{Lower: []float64{0.1, 0.1}, Upper: []float64{0.4, 0.3}}))
	l.apply(b, RefineElements(hbasis.IndexBox{Level: 2, Lower: []int{0, 0}, Upper: []int{5, 3}}))
	l.apply(a, Refine(0, 1, hbasis.ParamBox{Lower: []float64{0.2, 0.2}, Upper: []float64{0.2, 0.2}}))
	l.apply(b, UniformRefine())
	l.apply(gone, UniformRefine())
	if _, err := j.Append(gone, Drop()); err != nil {
		t.Fatal(err)
	}
	delete(l.sessions, gone)
	j.Close()

	recovery := NewRecovery(&Journal{Path: path})
	sessions, stats, err := recovery.Rebuild()
	if err != nil {
		t.Fatal(err)
	}

	assertSameSessions(t, l.sessions, sessions)
	if stats.TotalEntries != 9 {
		t.Errorf("expected 9 entries, got %d", stats.TotalEntries)
	}
	if stats.Sessions != 2 || stats.DroppedSessions != 1 {
		t.Errorf("unexpected session counts: %+v", stats)
	}
}

func TestRebuildUnknownSession(t *testing.T) {
	j, path := openJournal(t)
	j.Append(uuid.New(), UniformRefine())
	j.Close()

	_, _, err := NewRecovery(&Journal{Path: path}).Rebuild()
	if !errors.Is(err, ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession, got %v", err)
	}
}

func TestRecoverEmptyDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "test.journal")
	sessions, stats, err := NewRecovery(&Journal{Path: path}).Rebuild()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 || stats.TotalEntries != 0 {
		t.Errorf("expected nothing to recover, got %d sessions", len(sessions))
	}
}

func TestCheckpointReplacesHistory(t *testing.T) {
	j, path := openJournal(t)
	l := &live{t: t, j: j, sessions: make(map[uuid.UUID]*hbasis.Basis)}

	a := l.create(hbasis.Truncated)
	l.apply(a, RefineElements(hbasis.IndexBox{Level: 1, Lower: []int{0, 0}, Upper: []int{4, 4}}))
	l.apply(a, UniformRefine())

	checkpointer := NewCheckpointer(j, l.visit, zerolog.Nop())
	if err := checkpointer.Checkpoint(); err != nil {
		t.Fatal(err)
	}

	// refinements after the checkpoint are replayed on top of it
	l.apply(a, RefineElements(hbasis.IndexBox{Level: 3, Lower: []int{0, 0}, Upper: []int{3, 3}}))
	j.Close()

	files, _ := j.Files()
	if len(files) != 1 {
		t.Fatalf("expected the files before the checkpoint to be removed, got %v", files)
	}

	sessions, stats, err := NewRecovery(&Journal{Path: path}).Rebuild()
	if err != nil {
		t.Fatal(err)
	}
	assertSameSessions(t, l.sessions, sessions)
	if stats.Checkpoints != 1 || stats.TotalEntries != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.LastCheckpointLSN == 0 {
		t.Error("expected a checkpoint LSN")
	}
}

func TestCheckpointerStartStop(t *testing.T) {
	j, _ := openJournal(t)
	defer j.Close()

	var calls atomic.Int32
	checkpointer := NewCheckpointer(j, func(emit EmitFunc) error {
		calls.Add(1)
		return nil
	}, zerolog.Nop())
	checkpointer.SetInterval(10 * time.Millisecond)
	checkpointer.Start()

	time.Sleep(100 * time.Millisecond)
	checkpointer.Stop()

	if calls.Load() == 0 {
		t.Error("expected at least one checkpoint")
	}
}
