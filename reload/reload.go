// Package reload implements a double-buffered hot-reloadable resource
// holder: two versioned slots, each with an atomic refcount; readers
// take a lock-free handle against the active slot, writers reload the
// inactive slot under a mutex and then flip the version, and the
// previous slot is dropped opportunistically once its refcount reaches
// zero.
package reload

import (
	"sync"
	"sync/atomic"

	wrpc "github.com/source-build/go-wrpc"
)

// Loader constructs a new resource from reload parameters. Returning a nil
// resource with a nil error is treated the same as returning
// wrpc.ErrLoadFailed.
type Loader[T any] func(params any) (*T, error)

type slot[T any] struct {
	resource atomic.Pointer[T]
	refcount int64 // atomic
	dropMu   sync.Mutex
}

// Holder is a double-buffered reloadable resource. The zero value is not
// usable; construct with New.
type Holder[T any] struct {
	slots    [2]*slot[T]
	version  uint32 // atomic: index of the active slot
	reloadMu sync.Mutex
	loader   Loader[T]
	onDrop   func(*T)
}

// New constructs an empty Holder. Call Init before any Get.
func New[T any](loader Loader[T], onDrop func(*T)) *Holder[T] {
	return &Holder[T]{
		slots:  [2]*slot[T]{{}, {}},
		loader: loader,
		onDrop: onDrop,
	}
}

// Init loads the first resource into slot 0. It must be called before any
// Get/Reload.
func (h *Holder[T]) Init(params any) error {
	res, err := h.loader(params)
	if err != nil {
		return err
	}
	if res == nil {
		return wrpc.ErrLoadFailed
	}
	h.slots[0].resource.Store(res)
	atomic.StoreUint32(&h.version, 0)
	return nil
}

// Handle is a held reference to one version of the resource. Release it
// exactly once when done.
type Handle[T any] struct {
	h    *Holder[T]
	slot uint32
}

// Get returns the held resource.
func (hd *Handle[T]) Get() *T {
	return hd.h.slots[hd.slot].resource.Load()
}

// Release decrements the reference count and opportunistically drops the
// slot if it has since become inactive and unreferenced.
func (hd *Handle[T]) Release() {
	s := hd.h.slots[hd.slot]
	atomic.AddInt64(&s.refcount, -1)
	hd.h.releaseUnused(hd.slot)
}

// Get takes a handle against the currently active slot. It re-checks the
// version after incrementing the refcount and rebinds if a reload raced in
// between, since the prior version cannot have been released while a
// refcount was held against it.
func (h *Holder[T]) Get() *Handle[T] {
	for {
		v := atomic.LoadUint32(&h.version)
		s := h.slots[v]
		atomic.AddInt64(&s.refcount, 1)
		if atomic.LoadUint32(&h.version) == v {
			return &Handle[T]{h: h, slot: v}
		}
		atomic.AddInt64(&s.refcount, -1)
		// version changed between the load and the increment; retry
		// against whatever is current now.
	}
}

// Reload constructs a new resource via the configured Loader and installs
// it into the inactive slot, then flips the active version. It returns
// wrpc.ErrBufferInUse if the inactive slot still has outstanding
// readers, and wrpc.ErrLoadFailed if the loader returns a nil resource.
func (h *Holder[T]) Reload(params any) error {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	cur := atomic.LoadUint32(&h.version)
	other := 1 - cur
	if atomic.LoadInt64(&h.slots[other].refcount) != 0 {
		return wrpc.ErrBufferInUse
	}
	res, err := h.loader(params)
	if err != nil {
		return err
	}
	if res == nil {
		return wrpc.ErrLoadFailed
	}
	h.slots[other].resource.Store(res)
	atomic.StoreUint32(&h.version, other)
	h.releaseUnused(cur)
	return nil
}

// releaseUnused drops a slot's resource via onDrop if it is no longer
// active and has no outstanding readers. Safe to call speculatively.
func (h *Holder[T]) releaseUnused(idx uint32) {
	if atomic.LoadUint32(&h.version) == idx {
		return
	}
	s := h.slots[idx]
	if atomic.LoadInt64(&s.refcount) != 0 {
		return
	}
	s.dropMu.Lock()
	defer s.dropMu.Unlock()
	if atomic.LoadUint32(&h.version) == idx || atomic.LoadInt64(&s.refcount) != 0 {
		return
	}
	res := s.resource.Swap(nil)
	if res != nil && h.onDrop != nil {
		h.onDrop(res)
	}
}
