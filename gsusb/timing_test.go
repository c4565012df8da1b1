// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import "testing"

func TestMapTimingWithinRange(t *testing.T) {
	min := BitTiming{PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, SJW: 1, Prescaler: 1}
	max := BitTiming{PropSeg: 8, PhaseSeg1: 8, PhaseSeg2: 8, SJW: 4, Prescaler: 32}

	in := BitTiming{PropSeg: 2, PhaseSeg1: 3, PhaseSeg2: 2, SJW: 1, Prescaler: 10}
	got := mapTiming(in, min, max)
	if got != in {
		t.Fatalf("got %+v, want unchanged %+v", got, in)
	}
}

func TestMapTimingClampsPropSegConservingSum(t *testing.T) {
	min := BitTiming{PropSeg: 1, PhaseSeg1: 1}
	max := BitTiming{PropSeg: 8, PhaseSeg1: 8}

	in := BitTiming{PropSeg: 10, PhaseSeg1: 0}
	got := mapTiming(in, min, max)

	if got.PropSeg+got.PhaseSeg1 != in.PropSeg+in.PhaseSeg1 {
		t.Fatalf("sum not conserved: got %d+%d, want sum %d", got.PropSeg, got.PhaseSeg1, in.PropSeg+in.PhaseSeg1)
	}
	if got.PropSeg > max.PropSeg {
		t.Fatalf("PropSeg %d exceeds max %d", got.PropSeg, max.PropSeg)
	}
	if got.PhaseSeg1 < min.PhaseSeg1 {
		t.Fatalf("PhaseSeg1 %d under min %d", got.PhaseSeg1, min.PhaseSeg1)
	}
}

func TestMapTimingPassesThroughPhaseSeg2SJWPrescaler(t *testing.T) {
	min := BitTiming{PropSeg: 1, PhaseSeg1: 1}
	max := BitTiming{PropSeg: 8, PhaseSeg1: 8}

	in := BitTiming{PropSeg: 2, PhaseSeg1: 2, PhaseSeg2: 7, SJW: 3, Prescaler: 42}
	got := mapTiming(in, min, max)

	if got.PhaseSeg2 != in.PhaseSeg2 || got.SJW != in.SJW || got.Prescaler != in.Prescaler {
		t.Fatalf("got %+v, want PhaseSeg2/SJW/Prescaler unchanged from %+v", got, in)
	}
}

func TestMapTimingUnsatisfiableSumBestEffort(t *testing.T) {
	min := BitTiming{PropSeg: 1, PhaseSeg1: 1}
	max := BitTiming{PropSeg: 4, PhaseSeg1: 4}

	in := BitTiming{PropSeg: 20, PhaseSeg1: 0}
	got := mapTiming(in, min, max)

	if got.PropSeg > max.PropSeg || got.PhaseSeg1 > max.PhaseSeg1 {
		t.Fatalf("result %+v exceeds max %+v", got, max)
	}
}

func TestClampU32(t *testing.T) {
	if got := clampU32(5, 1, 10); got != 5 {
		t.Fatalf("clampU32(5,1,10) = %d, want 5", got)
	}
	if got := clampU32(0, 1, 10); got != 1 {
		t.Fatalf("clampU32(0,1,10) = %d, want 1", got)
	}
	if got := clampU32(20, 1, 10); got != 10 {
		t.Fatalf("clampU32(20,1,10) = %d, want 10", got)
	}
}
