// Package tierfile implements per-tier persistence on fixed-record binary
// files: a ring-buffer store for the raw tier and an append-only store for
// the rollup tiers and the lifetime record.
//
// Every file is a plain array of fixed-size records; the single integrity
// invariant is file_size % record_size == 0. Both stores open their file
// lazily and drop the handle on failure, so a missing or failing medium
// degrades to per-write errors and writing resumes on its own once the
// medium is back.
package tierfile

import (
	"fmt"
	"os"
	"sync"

	"github.com/trevorflahardy/baro/internal/storage/types"
)

// Ring is a fixed-capacity circular store for raw samples. Writes beyond
// capacity overwrite the oldest slot in index order.
type Ring struct {
	mu sync.RWMutex

	path       string
	capacity   int64
	syncWrites bool

	f     *os.File
	next  int64 // Next slot to write.
	count int64 // Valid records, <= capacity.

	stats RingStats
}

// RingStats holds ring store statistics.
type RingStats struct {
	Writes       int64
	WriteErrors  int64
	Reinits      int64
	LastRecovery int64 // Slot writing resumed at after the last open.
}

// NewRing creates a ring store for the given file. The file is not touched
// until the first write or read; a missing medium is not an error here.
func NewRing(path string, capacity int, syncWrites bool) *Ring {
	return &Ring{
		path:       path,
		capacity:   int64(capacity),
		syncWrites: syncWrites,
	}
}

// Open eagerly opens and recovers the backing file. Optional: Write and
// ReadLast open lazily.
func (r *Ring) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureOpen()
}

// ensureOpen opens the file and determines the resume position.
// Caller must hold the write lock.
func (r *Ring) ensureOpen() error {
	if r.f != nil {
		return nil
	}

	f, err := os.OpenFile(r.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return classify("open ring "+r.path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return classify("stat ring "+r.path, err)
	}

	recSize := int64(types.RawSampleSize)
	size := st.Size()
	slots := size / recSize

	// A torn write or a capacity change leaves the file unusable as a
	// ring; this tier is short-retention, so reinitialize from slot 0.
	if size%recSize != 0 || slots > r.capacity {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return classify("reinit ring "+r.path, err)
		}
		r.f = f
		r.next = 0
		r.count = 0
		r.stats.Reinits++
		r.stats.LastRecovery = 0
		return nil
	}

	// Overwriting in place destroys ordering metadata, so the resume
	// position is recovered by scanning for the greatest timestamp.
	next := int64(0)
	if slots > 0 {
		buf := make([]byte, recSize)
		newestSlot := int64(0)
		var newestTS uint32
		corrupt := false

		for slot := int64(0); slot < slots; slot++ {
			if _, err := f.ReadAt(buf, slot*recSize); err != nil {
				f.Close()
				return classify("scan ring "+r.path, err)
			}
			s, err := types.DecodeRawSample(buf)
			if err != nil {
				corrupt = true
				break
			}
			if s.Timestamp >= newestTS {
				newestTS = s.Timestamp
				newestSlot = slot
			}
		}

		if corrupt {
			if err := f.Truncate(0); err != nil {
				f.Close()
				return classify("reinit ring "+r.path, err)
			}
			r.f = f
			r.next = 0
			r.count = 0
			r.stats.Reinits++
			r.stats.LastRecovery = 0
			return nil
		}

		next = (newestSlot + 1) % r.capacity
	}

	r.f = f
	r.next = next
	r.count = slots
	r.stats.LastRecovery = next
	return nil
}

// Write persists one sample into the next slot, overwriting whatever was
// there. On failure the handle is dropped so the next write retries the
// open (lazy medium recovery).
func (r *Ring) Write(sample types.RawSample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureOpen(); err != nil {
		r.stats.WriteErrors++
		return err
	}

	slot := r.next
	if _, err := r.f.WriteAt(sample.Encode(), slot*int64(types.RawSampleSize)); err != nil {
		r.dropHandle()
		r.stats.WriteErrors++
		return classify("write ring slot "+fmt.Sprint(slot), err)
	}
	if r.syncWrites {
		if err := r.f.Sync(); err != nil {
			r.dropHandle()
			r.stats.WriteErrors++
			return classify("sync ring "+r.path, err)
		}
	}

	r.next = (slot + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
	r.stats.Writes++
	return nil
}

// ReadLast returns the last n samples in timestamp order, reading backward
// from the current position and wrapping as needed. Reads share the file
// handle with the writer through ReadAt and never pause it beyond position
// bookkeeping.
func (r *Ring) ReadLast(n int) ([]types.RawSample, error) {
	r.mu.Lock()
	if err := r.ensureOpen(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	f, next, count := r.f, r.next, r.count
	r.mu.Unlock()

	if n <= 0 || count == 0 {
		return nil, nil
	}
	if int64(n) > count {
		n = int(count)
	}

	recSize := int64(types.RawSampleSize)
	buf := make([]byte, recSize)
	out := make([]types.RawSample, n)

	slot := next
	for i := n - 1; i >= 0; i-- {
		slot--
		if slot < 0 {
			slot += r.capacity
		}
		if _, err := f.ReadAt(buf, slot*recSize); err != nil {
			return nil, classify("read ring slot "+fmt.Sprint(slot), err)
		}
		s, err := types.DecodeRawSample(buf)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}

	return out, nil
}

// Count returns the number of valid records currently in the ring.
func (r *Ring) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.count)
}

// Capacity returns the configured ring capacity in records.
func (r *Ring) Capacity() int {
	return int(r.capacity)
}

// Stats returns ring statistics.
func (r *Ring) Stats() RingStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// Close releases the file handle. The store stays usable; the next
// operation reopens.
func (r *Ring) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}

// dropHandle closes and forgets the file so the next operation reopens
// and re-recovers. Caller must hold the write lock.
func (r *Ring) dropHandle() {
	if r.f != nil {
		r.f.Close()
		r.f = nil
	}
}
