// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"testing"
)

type fakeBulk struct {
	in chan []byte
}

func newFakeBulk() *fakeBulk {
	return &fakeBulk{in: make(chan []byte, 8)}
}

func (b *fakeBulk) ReadOut([]byte) (int, error) { select {} }

func (b *fakeBulk) WriteIn(buf []byte) error {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	b.in <- cp
	return nil
}

func startedTestChannel(t *testing.T, dev *Device, caps Capabilities) (*Channel, *fakeController) {
	t.Helper()
	ctrl := newFakeController(caps)
	ch, err := dev.RegisterChannel(0, ctrl, fakeOpsNone{}, LEDLines{Activity: true})
	if err != nil {
		t.Fatal(err)
	}
	ch.led = newLEDMachine(0, fakeOpsNone{}, LEDLines{Activity: true})
	ch.mode.Store(uint32(FeatureLoopBack))
	ch.started.Store(true)
	return ch, ctrl
}

func TestHandleTXDropsUnstartedChannel(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ctrl := newFakeController(CapLoopBack)
	dev.RegisterChannel(0, ctrl, fakeOpsNone{}, LEDLines{Activity: true})

	hdr := hostFrameHdr{EchoID: 1, CanID: 0x123, CanDLC: 0, Channel: 0}
	buf, _ := dev.pool.Get()
	copy(buf, hdr.pack())
	dev.handleTX(buf[:hostFrameHdrLen])

	if len(ctrl.sent) != 0 {
		t.Fatal("expected no frame sent on an unstarted channel")
	}
}

func TestHandleTXSendsClassicFrame(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	_, ctrl := startedTestChannel(t, dev, CapLoopBack)

	hdr := hostFrameHdr{EchoID: 42, CanID: 0x123, CanDLC: 4, Channel: 0}
	buf, _ := dev.pool.Get()
	copy(buf[:hostFrameHdrLen], hdr.pack())
	copy(buf[hostFrameHdrLen:], []byte{1, 2, 3, 4})
	dev.handleTX(buf[:hostFrameHdrLen+4])

	if len(ctrl.sent) != 1 {
		t.Fatalf("sent %d frames, want 1", len(ctrl.sent))
	}
	f := ctrl.sent[0]
	if f.ID != 0x123 || f.DLC != 4 || f.Data[3] != 4 {
		t.Fatalf("got %+v", f)
	}
}

func TestHandleTXExtendedAndRTR(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	_, ctrl := startedTestChannel(t, dev, CapLoopBack)

	hdr := hostFrameHdr{EchoID: 1, CanID: 0x1ffff | idFlagExtended | idFlagRTR, CanDLC: 0, Channel: 0}
	buf, _ := dev.pool.Get()
	copy(buf[:hostFrameHdrLen], hdr.pack())
	dev.handleTX(buf[:hostFrameHdrLen])

	f := ctrl.sent[0]
	if !f.Extended || !f.RTR {
		t.Fatalf("got %+v, want Extended and RTR set", f)
	}
	if f.ID != 0x1ffff {
		t.Fatalf("ID = %#x, want 0x1ffff", f.ID)
	}
}

func TestOnControllerRXBuildsHostFrame(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := startedTestChannel(t, dev, CapLoopBack)

	dev.onControllerRX(ch, Frame{ID: 0x456, DLC: 2, Data: [64]byte{9, 8}})

	select {
	case buf := <-dev.rxCh:
		hdr, err := unpackFrameHdr(buf)
		if err != nil {
			t.Fatal(err)
		}
		if hdr.EchoID != echoIDRx {
			t.Fatalf("EchoID = %#x, want echoIDRx", hdr.EchoID)
		}
		if hdr.CanID != 0x456 {
			t.Fatalf("CanID = %#x, want 0x456", hdr.CanID)
		}
		if buf[hostFrameHdrLen] != 9 || buf[hostFrameHdrLen+1] != 8 {
			t.Fatalf("payload = %v, want [9 8 ...]", buf[hostFrameHdrLen:])
		}
	default:
		t.Fatal("expected a frame queued on rxCh")
	}
}

func TestOnControllerRXOverflowWhenPoolExhausted(t *testing.T) {
	dev, err := New(1, Config{PoolBuffers: 1})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := startedTestChannel(t, dev, CapLoopBack)

	// Drain the single pool buffer so the next RX has none available.
	dev.pool.Get()

	dev.onControllerRX(ch, Frame{ID: 1})
	if !ch.takeOverflow() {
		t.Fatal("expected overflow counter raised on pool exhaustion")
	}
}

func TestOnStateChangeStoppedNeverReported(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := startedTestChannel(t, dev, CapLoopBack)

	dev.onStateChange(ch, StateStopped, 0, 0)
	select {
	case <-dev.rxCh:
		t.Fatal("STOPPED must never be reported as an error frame")
	default:
	}
}

func TestOnStateChangeBusOffReportsErrorFrame(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := startedTestChannel(t, dev, CapLoopBack)

	dev.onStateChange(ch, StateBusOff, 3, 4)

	buf := <-dev.rxCh
	hdr, _ := unpackFrameHdr(buf)
	if hdr.CanID&idFlagErr == 0 || hdr.CanID&errBusoff == 0 {
		t.Fatalf("CanID = %#x, want error+busoff bits set", hdr.CanID)
	}
	if buf[hostFrameHdrLen+6] != 4 || buf[hostFrameHdrLen+7] != 3 {
		t.Fatalf("txErr/rxErr bytes = %d/%d, want 4/3", buf[hostFrameHdrLen+6], buf[hostFrameHdrLen+7])
	}
}

func TestOnStateChangeErrorActiveRestartedAfterBusoff(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := startedTestChannel(t, dev, CapLoopBack)
	ch.busoff.Store(true)

	dev.onStateChange(ch, StateErrorActive, 0, 0)

	buf := <-dev.rxCh
	hdr, _ := unpackFrameHdr(buf)
	if hdr.CanID&errRestarted == 0 {
		t.Fatal("expected errRestarted bit set after recovering from busoff")
	}
}

func TestHandleINSetsOverflowFlagAndActivityLED(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := startedTestChannel(t, dev, CapLoopBack)
	ch.incOverflow()

	hdr := hostFrameHdr{EchoID: echoIDRx, CanID: 0x10, Channel: 0}
	buf, _ := dev.pool.Get()
	buf = buf[:hostFrameHdrLen+8]
	copy(buf[:hostFrameHdrLen], hdr.pack())

	bulk := newFakeBulk()
	dev.handleIN(bulk, buf)

	out := <-bulk.in
	if out[hdrFlagsOffset]&FrameFlagOverflow == 0 {
		t.Fatal("expected FrameFlagOverflow set on delivered frame")
	}
	select {
	case ev := <-ch.led.events:
		if ev != EventActivityRX {
			t.Fatalf("LED event = %v, want EventActivityRX", ev)
		}
	default:
		t.Fatal("expected an RX activity LED event after the IN transfer")
	}
}

func TestHandleINDropsActivityForErrorFrames(t *testing.T) {
	dev, err := New(1, Config{})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := startedTestChannel(t, dev, CapLoopBack)

	hdr := hostFrameHdr{EchoID: echoIDRx, CanID: idFlagErr, Channel: 0}
	buf, _ := dev.pool.Get()
	buf = buf[:hostFrameHdrLen+8]
	copy(buf[:hostFrameHdrLen], hdr.pack())

	bulk := newFakeBulk()
	dev.handleIN(bulk, buf)
	<-bulk.in
	select {
	case ev := <-ch.led.events:
		t.Fatalf("LED event %v raised for an error frame, want none", ev)
	default:
	}
}

func TestAppendTimestampFallsBackToZeroWithoutProvider(t *testing.T) {
	dev, err := New(1, Config{TimestampBuildOption: true})
	if err != nil {
		t.Fatal(err)
	}
	ch, _ := startedTestChannel(t, dev, CapLoopBack)

	buf := make([]byte, hostFrameHdrLen, hostFrameHdrLen+4)
	out := dev.appendTimestampFor(buf, ch)
	if len(out) != hostFrameHdrLen+4 {
		t.Fatalf("len = %d, want %d", len(out), hostFrameHdrLen+4)
	}
	for _, b := range out[hostFrameHdrLen:] {
		if b != 0 {
			t.Fatal("expected zeroed timestamp without a TimestampProvider")
		}
	}
}
