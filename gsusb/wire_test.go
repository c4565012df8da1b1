// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"bytes"
	"testing"
)

func TestUnpackHostConfigRejectsWrongLength(t *testing.T) {
	if _, err := unpackHostConfig([]byte{0xef, 0xbe, 0x00}); err == nil {
		t.Fatal("expected error for short host_config payload")
	}
}

func TestUnpackHostConfigMagic(t *testing.T) {
	c, err := unpackHostConfig([]byte{0xef, 0xbe, 0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if c.ByteOrder != hostByteOrderMagic {
		t.Fatalf("ByteOrder = %#x, want %#x", c.ByteOrder, hostByteOrderMagic)
	}
}

func TestDeviceConfigPack(t *testing.T) {
	c := deviceConfig{ICount: 1, SWVersion: 2, HWVersion: 3}
	b := c.pack()
	if len(b) != deviceConfigLen {
		t.Fatalf("len = %d, want %d", len(b), deviceConfigLen)
	}
	if b[3] != 1 {
		t.Fatalf("ICount byte = %d, want 1", b[3])
	}
}

func TestBittimingRoundTrip(t *testing.T) {
	want := deviceBittiming{PropSeg: 1, PhaseSeg1: 2, PhaseSeg2: 3, SJW: 4, Prescaler: 5}
	got, err := unpackBittiming(want.pack())
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestBittimingRejectsWrongLength(t *testing.T) {
	if _, err := unpackBittiming(make([]byte, deviceBittimingLen-1)); err == nil {
		t.Fatal("expected error for truncated bittiming payload")
	}
}

func TestBtConstExtPack(t *testing.T) {
	c := btConstExt{
		btConst:   btConst{Feature: 1, FClkCAN: 2},
		DTSeg1Min: 3,
	}
	b := c.pack()
	if len(b) != btConstExtLen {
		t.Fatalf("len = %d, want %d", len(b), btConstExtLen)
	}
	if !bytes.Equal(b[:btConstLen], c.btConst.pack()) {
		t.Fatal("btConst prefix mismatch")
	}
}

func TestHostFrameHdrRoundTrip(t *testing.T) {
	want := hostFrameHdr{EchoID: 7, CanID: 0x123, CanDLC: 8, Channel: 0, Flags: FrameFlagFD, Reserved: 0}
	got, err := unpackFrameHdr(want.pack())
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestUnpackFrameHdrTooShort(t *testing.T) {
	if _, err := unpackFrameHdr(make([]byte, hostFrameHdrLen-1)); err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestDlcToLenClassic(t *testing.T) {
	cases := []struct {
		dlc  uint8
		want int
	}{
		{0, 0}, {8, 8}, {9, 8}, {15, 8},
	}
	for _, c := range cases {
		if got := dlcToLen(c.dlc, false); got != c.want {
			t.Errorf("dlcToLen(%d, false) = %d, want %d", c.dlc, got, c.want)
		}
	}
}

func TestDlcToLenFD(t *testing.T) {
	cases := []struct {
		dlc  uint8
		want int
	}{
		{8, 8}, {9, 12}, {10, 16}, {11, 20}, {12, 24}, {13, 32}, {14, 48}, {15, 64}, {20, 64},
	}
	for _, c := range cases {
		if got := dlcToLen(c.dlc, true); got != c.want {
			t.Errorf("dlcToLen(%d, true) = %d, want %d", c.dlc, got, c.want)
		}
	}
}

func TestTerminationRoundTrip(t *testing.T) {
	got, err := unpackTermination(terminationState{State: TerminationOn}.pack())
	if err != nil {
		t.Fatal(err)
	}
	if got.State != TerminationOn {
		t.Fatalf("State = %d, want %d", got.State, TerminationOn)
	}
}
