package tierfile

import (
	"fmt"
	"os"
	"sync"
)

// Append is an append-only store of fixed-size records, used for the
// rollup tiers. It also backs the lifetime record through Overwrite,
// which rewrites offset 0 in place instead of growing the file.
type Append struct {
	mu sync.RWMutex

	path       string
	recordSize int64
	syncWrites bool

	f    *os.File
	size int64 // Always a multiple of recordSize.

	stats AppendStats
}

// AppendStats holds append store statistics.
type AppendStats struct {
	Appends     int64
	Overwrites  int64
	WriteErrors int64
	Truncations int64 // Torn-write recoveries performed on open.
}

// NewAppend creates an append-only store for the given file and record
// size. The file is opened lazily.
func NewAppend(path string, recordSize int, syncWrites bool) *Append {
	return &Append{
		path:       path,
		recordSize: int64(recordSize),
		syncWrites: syncWrites,
	}
}

// Open eagerly opens and recovers the backing file.
func (a *Append) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ensureOpen()
}

// ensureOpen opens the file and repairs a torn tail. A file size that is
// not a whole number of records means a power loss hit mid-write; the file
// is truncated to the last complete record boundary, losing at most the
// one record that was being written. Caller must hold the write lock.
func (a *Append) ensureOpen() error {
	if a.f != nil {
		return nil
	}

	f, err := os.OpenFile(a.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return classify("open "+a.path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return classify("stat "+a.path, err)
	}

	size := st.Size()
	if rem := size % a.recordSize; rem != 0 {
		size -= rem
		if err := f.Truncate(size); err != nil {
			f.Close()
			return classify("truncate torn tail "+a.path, err)
		}
		a.stats.Truncations++
	}

	a.f = f
	a.size = size
	return nil
}

// Append writes one record at end-of-file. record must be exactly the
// store's record size.
func (a *Append) Append(record []byte) error {
	if int64(len(record)) != a.recordSize {
		return fmt.Errorf("append %s: record length %d, want %d", a.path, len(record), a.recordSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpen(); err != nil {
		a.stats.WriteErrors++
		return err
	}

	if _, err := a.f.WriteAt(record, a.size); err != nil {
		a.dropHandle()
		a.stats.WriteErrors++
		return classify("append "+a.path, err)
	}
	if a.syncWrites {
		if err := a.f.Sync(); err != nil {
			a.dropHandle()
			a.stats.WriteErrors++
			return classify("sync "+a.path, err)
		}
	}

	a.size += a.recordSize
	a.stats.Appends++
	return nil
}

// Overwrite rewrites the record at offset 0 in place. A torn write here
// only leaves the value stale until the next update; it never corrupts
// other records.
func (a *Append) Overwrite(record []byte) error {
	if int64(len(record)) != a.recordSize {
		return fmt.Errorf("overwrite %s: record length %d, want %d", a.path, len(record), a.recordSize)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ensureOpen(); err != nil {
		a.stats.WriteErrors++
		return err
	}

	if _, err := a.f.WriteAt(record, 0); err != nil {
		a.dropHandle()
		a.stats.WriteErrors++
		return classify("overwrite "+a.path, err)
	}
	if a.syncWrites {
		if err := a.f.Sync(); err != nil {
			a.dropHandle()
			a.stats.WriteErrors++
			return classify("sync "+a.path, err)
		}
	}

	if a.size < a.recordSize {
		a.size = a.recordSize
	}
	a.stats.Overwrites++
	return nil
}

// ReadLast returns the raw bytes of the last n records in file order,
// clamped to what exists.
func (a *Append) ReadLast(n int) ([][]byte, error) {
	a.mu.Lock()
	if err := a.ensureOpen(); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	f, size := a.f, a.size
	a.mu.Unlock()

	if n <= 0 || size == 0 {
		return nil, nil
	}

	count := size / a.recordSize
	if int64(n) > count {
		n = int(count)
	}

	offset := size - int64(n)*a.recordSize
	buf := make([]byte, int64(n)*a.recordSize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, classify("read "+a.path, err)
	}

	out := make([][]byte, n)
	for i := range out {
		out[i] = buf[int64(i)*a.recordSize : int64(i+1)*a.recordSize]
	}
	return out, nil
}

// ReadFirst returns the raw bytes of the record at offset 0, or nil if the
// file is empty. Used for the lifetime singleton.
func (a *Append) ReadFirst() ([]byte, error) {
	records, err := a.readAt(0, 1)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// readAt returns up to n records starting at record index idx.
func (a *Append) readAt(idx, n int) ([][]byte, error) {
	a.mu.Lock()
	if err := a.ensureOpen(); err != nil {
		a.mu.Unlock()
		return nil, err
	}
	f, size := a.f, a.size
	a.mu.Unlock()

	count := size / a.recordSize
	if int64(idx) >= count || n <= 0 {
		return nil, nil
	}
	if int64(idx+n) > count {
		n = int(count) - idx
	}

	buf := make([]byte, int64(n)*a.recordSize)
	if _, err := f.ReadAt(buf, int64(idx)*a.recordSize); err != nil {
		return nil, classify("read "+a.path, err)
	}

	out := make([][]byte, n)
	for i := range out {
		out[i] = buf[int64(i)*a.recordSize : int64(i+1)*a.recordSize]
	}
	return out, nil
}

// Count returns the number of whole records in the file.
func (a *Append) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.f == nil {
		if st, err := os.Stat(a.path); err == nil {
			return int(st.Size() / a.recordSize)
		}
		return 0
	}
	return int(a.size / a.recordSize)
}

// Stats returns append store statistics.
func (a *Append) Stats() AppendStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// Close releases the file handle. The store stays usable; the next
// operation reopens.
func (a *Append) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// dropHandle closes and forgets the file so the next operation reopens
// and re-recovers. Caller must hold the write lock.
func (a *Append) dropHandle() {
	if a.f != nil {
		a.f.Close()
		a.f = nil
	}
}
