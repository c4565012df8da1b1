// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package pool

import (
	"sync"
	"testing"
)

func TestGetExhaustion(t *testing.T) {
	p := New(2, 16)

	if _, ok := p.Get(); !ok {
		t.Fatal("expected first Get to succeed")
	}
	if _, ok := p.Get(); !ok {
		t.Fatal("expected second Get to succeed")
	}
	if _, ok := p.Get(); ok {
		t.Fatal("expected third Get to fail, pool exhausted")
	}
}

func TestGetReturnsZeroedBuffer(t *testing.T) {
	p := New(1, 4)

	buf, _ := p.Get()
	copy(buf, []byte{1, 2, 3, 4})
	p.Put(buf)

	buf2, ok := p.Get()
	if !ok {
		t.Fatal("expected Get after Put to succeed")
	}
	for i, b := range buf2 {
		if b != 0 {
			t.Fatalf("buf2[%d] = %d, want 0", i, b)
		}
	}
}

func TestPutWrongSizeRejected(t *testing.T) {
	p := New(1, 8)

	buf, _ := p.Get()
	p.Put(buf)
	p.Put(make([]byte, 4))

	if _, ok := p.Get(); !ok {
		t.Fatal("expected the correctly sized buffer back")
	}
	if _, ok := p.Get(); ok {
		t.Fatal("wrongly sized buffer must not have been accepted")
	}
}

func TestSize(t *testing.T) {
	p := New(1, 128)
	if p.Size() != 128 {
		t.Fatalf("Size() = %d, want 128", p.Size())
	}
}

func TestConcurrentGetPut(t *testing.T) {
	const n = 8
	p := New(n, 16)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf, ok := p.Get()
			if !ok {
				t.Error("unexpected exhaustion under concurrent access")
				return
			}
			p.Put(buf)
		}()
	}
	wg.Wait()

	got := 0
	for {
		if _, ok := p.Get(); !ok {
			break
		}
		got++
	}
	if got != n {
		t.Fatalf("recovered %d buffers, want %d", got, n)
	}
}
