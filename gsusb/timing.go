// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

// mapTiming translates a host-requested bit timing to controller
// native timing by clamping prop_seg/phase_seg1 into [min,max] while
// conserving prop_seg+phase_seg1 (§4.3): excess prop_seg moves into
// phase_seg1 and vice versa. phase_seg2, sjw and prescaler pass
// through unchanged. The bit rate (prescaler) is never altered and no
// TQ is invented; when the conserved sum does not fit within both
// ranges the closest representable split is returned.
func mapTiming(in, min, max BitTiming) BitTiming {
	sum := in.PropSeg + in.PhaseSeg1

	propSeg := clampU32(in.PropSeg, min.PropSeg, max.PropSeg)

	var remaining uint32
	if propSeg < sum {
		remaining = sum - propSeg
	}
	phaseSeg1 := clampU32(remaining, min.PhaseSeg1, max.PhaseSeg1)

	// If clamping phase_seg1 left TQs unassigned, push them back into
	// prop_seg as far as prop_seg's own range allows.
	if assigned := propSeg + phaseSeg1; assigned < sum {
		deficit := sum - assigned
		room := max.PropSeg - propSeg
		propSeg += minU32(deficit, room)
	}

	return BitTiming{
		PropSeg:   propSeg,
		PhaseSeg1: phaseSeg1,
		PhaseSeg2: in.PhaseSeg2,
		SJW:       in.SJW,
		Prescaler: in.Prescaler,
	}
}

func clampU32(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
