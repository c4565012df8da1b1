// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package pool implements a fixed-size, fixed-count buffer allocator
// for host frames (§3, §4.5).
//
// It is grounded on the free-list discipline of the teacher's
// dma.Alloc/dma.Free (first-fit over a list of blocks) but drops the
// physical-address bookkeeping entirely: the gs_usb core never touches
// physical memory, only the transport adapter beneath it does, so this
// pool works purely over Go byte slices allocated once at New and
// recycled for the lifetime of the device.
package pool

import "sync"

// Pool is a bounded, lock-protected free list of fixed-size buffers.
// Get never blocks: it returns ok=false when the pool is exhausted,
// which is the signal the frame pipeline uses to raise the per-channel
// overflow counter (§3 invariant 5) instead of treating allocation
// failure as fatal.
type Pool struct {
	mu    sync.Mutex
	free  [][]byte
	size  int
}

// New allocates count buffers of size bytes each, all initially free.
func New(count, size int) *Pool {
	p := &Pool{
		free: make([][]byte, 0, count),
		size: size,
	}
	for i := 0; i < count; i++ {
		p.free = append(p.free, make([]byte, size))
	}
	return p
}

// Size returns the fixed buffer size this pool hands out.
func (p *Pool) Size() int {
	return p.size
}

// Get removes and returns a free buffer, zeroed, or ok=false if none
// remain.
func (p *Pool) Get() (buf []byte, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.free)
	if n == 0 {
		return nil, false
	}

	buf = p.free[n-1]
	p.free = p.free[:n-1]

	for i := range buf {
		buf[i] = 0
	}

	return buf, true
}

// Put returns a buffer to the pool. Buffers of the wrong size are
// rejected silently (a programmer error, not a runtime condition worth
// panicking the worker over); a buffer of the right size is accepted
// whether or not it came from this pool.
func (p *Pool) Put(buf []byte) {
	if len(buf) != p.size {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, buf)
}
