package ksierrors

import "sync"

// Entry is one pushed record of the error ring (spec §5 "shared resources",
// §7 propagation: "(status, external_status, file, line, message)").
type Entry struct {
	Code     Code
	External int
	File     string
	Line     int
	Message  string
}

// Ring is the fixed-size mod-N error ring owned by a Context. Push never
// allocates once the ring is preallocated by NewRing.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	count   int
}

// NewRing preallocates a ring of the given capacity. size<=0 defaults to 16
// per spec §7.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 16
	}
	return &Ring{entries: make([]Entry, size)}
}

// Push records e at the next ring slot, overwriting the oldest entry once
// the ring is full.
func (r *Ring) Push(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.count < len(r.entries) {
		r.count++
	}
}

// PushError pushes an *Error (if err is one) onto the ring at the given
// call site. Non-*Error values are ignored: the ring only carries KSI
// taxonomy errors.
func (r *Ring) PushError(err error, file string, line int) {
	e, ok := err.(*Error)
	if !ok {
		return
	}
	r.Push(Entry{Code: e.Code, External: e.External, File: file, Line: line, Message: e.Message})
}

// Entries returns the ring contents oldest-first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.entries)
	}
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(start+i)%len(r.entries)]
	}
	return out
}

// Reset clears the ring. Called at the entry of each top-level public
// operation (Sign, Extend, Verify) per spec §7.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.count = 0
}
