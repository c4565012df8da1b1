// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"encoding/binary"
	"errors"
	"testing"
)

func newTestDevice(t *testing.T, caps Capabilities, ops Operations) (*Device, *fakeController) {
	t.Helper()

	dev, err := New(1, Config{
		SoftwareVersion:        1,
		HardwareVersion:        1,
		TimestampBuildOption:   true,
		TerminationBuildOption: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctrl := newFakeController(caps)
	if ops == nil {
		ops = fakeOpsNone{}
	}
	if _, err := dev.RegisterChannel(0, ctrl, ops, LEDLines{Activity: true}); err != nil {
		t.Fatal(err)
	}

	return dev, ctrl
}

func TestHandleSetupUnregisteredChannel(t *testing.T) {
	dev, err := New(2, Config{})
	if err != nil {
		t.Fatal(err)
	}
	dev.RegisterChannel(0, newFakeController(CapLoopBack), fakeOpsNone{}, LEDLines{Activity: true})

	req := ControlRequest{Recipient: RecipientInterface, Request: reqGetState, Value: 1}
	if _, err := dev.HandleSetup(req, nil); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("got %v, want ErrNoDevice", err)
	}
}

func TestHandleSetupOutOfRangeChannel(t *testing.T) {
	dev, _ := newTestDevice(t, CapLoopBack, nil)

	req := ControlRequest{Recipient: RecipientInterface, Request: reqGetState, Value: 9}
	if _, err := dev.HandleSetup(req, nil); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestHandleSetupHostFormat(t *testing.T) {
	dev, _ := newTestDevice(t, CapLoopBack, nil)

	req := ControlRequest{Recipient: RecipientInterface, Request: reqHostFormat, Value: 0}
	b := []byte{0xef, 0xbe, 0x00, 0x00}

	if _, err := dev.HandleSetup(req, b); err != nil {
		t.Fatal(err)
	}
}

func TestHandleSetupHostFormatRejectsWrongMagic(t *testing.T) {
	dev, _ := newTestDevice(t, CapLoopBack, nil)

	req := ControlRequest{Recipient: RecipientInterface, Request: reqHostFormat, Value: 0}
	if _, err := dev.HandleSetup(req, []byte{0, 0, 0, 0}); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("got %v, want ErrNotSupported", err)
	}
}

func TestHandleSetupBittimingRejectedWhileStarted(t *testing.T) {
	dev, ctrl := newTestDevice(t, CapLoopBack, nil)
	_ = ctrl

	startReq := ControlRequest{Recipient: RecipientInterface, Request: reqMode, Value: 0}
	modePayload := deviceMode{Mode: CANModeStart, Flags: uint32(FeatureLoopBack)}.packForTest()
	if _, err := dev.HandleSetup(startReq, modePayload); err != nil {
		t.Fatal(err)
	}

	btReq := ControlRequest{Recipient: RecipientInterface, Request: reqBittiming, Value: 0}
	timing := deviceBittiming{PropSeg: 1, PhaseSeg1: 1, PhaseSeg2: 1, SJW: 1, Prescaler: 1}.pack()
	if _, err := dev.HandleSetup(btReq, timing); !errors.Is(err, ErrBusy) {
		t.Fatalf("got %v, want ErrBusy", err)
	}
}

func TestHandleSetupModeStartRejectsWiderFlagsThanFeatures(t *testing.T) {
	dev, _ := newTestDevice(t, 0, nil) // no capabilities -> no optional features

	req := ControlRequest{Recipient: RecipientInterface, Request: reqMode, Value: 0}
	payload := deviceMode{Mode: CANModeStart, Flags: uint32(FeatureLoopBack)}.packForTest()

	if _, err := dev.HandleSetup(req, payload); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want ErrInvalid", err)
	}
}

func TestHandleSetupModeStartRevertsOnControllerFailure(t *testing.T) {
	dev, ctrl := newTestDevice(t, CapLoopBack, nil)
	ctrl.startErr = errors.New("bus init failed")

	req := ControlRequest{Recipient: RecipientInterface, Request: reqMode, Value: 0}
	payload := deviceMode{Mode: CANModeStart, Flags: uint32(FeatureLoopBack)}.packForTest()

	if _, err := dev.HandleSetup(req, payload); err == nil {
		t.Fatal("expected controller Start failure to surface")
	}

	ch, _ := dev.channel(0)
	if ch.Started() {
		t.Fatal("Started must revert to false after a failed controller Start")
	}
	if ch.Mode() != 0 {
		t.Fatal("Mode must revert to 0 after a failed controller Start")
	}
}

func TestHandleSetupModeResetStopsController(t *testing.T) {
	dev, ctrl := newTestDevice(t, CapLoopBack, nil)

	startReq := ControlRequest{Recipient: RecipientInterface, Request: reqMode, Value: 0}
	dev.HandleSetup(startReq, deviceMode{Mode: CANModeStart, Flags: uint32(FeatureLoopBack)}.packForTest())

	resetReq := ControlRequest{Recipient: RecipientInterface, Request: reqMode, Value: 0}
	if _, err := dev.HandleSetup(resetReq, deviceMode{Mode: CANModeReset}.packForTest()); err != nil {
		t.Fatal(err)
	}
	if ctrl.started {
		t.Fatal("expected controller stopped after MODE=RESET")
	}
}

func TestHandleSetupIdentifyRequiresFeature(t *testing.T) {
	dev, _ := newTestDevice(t, CapLoopBack, nil) // fakeOpsNone: no Identifier

	req := ControlRequest{Recipient: RecipientInterface, Request: reqIdentify, Value: 0}
	payload := identifyMode{Mode: 1}.packForTest()
	if _, err := dev.HandleSetup(req, payload); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("got %v, want ErrNotSupported", err)
	}
}

type identifyOps struct {
	fakeOpsNone
	on bool
}

func (o *identifyOps) Identify(_ int, on bool) error {
	o.on = on
	return nil
}

func TestHandleSetupIdentifyDrivesOps(t *testing.T) {
	ops := &identifyOps{}
	dev, _ := newTestDevice(t, CapLoopBack, ops)

	req := ControlRequest{Recipient: RecipientInterface, Request: reqIdentify, Value: 0}
	if _, err := dev.HandleSetup(req, identifyMode{Mode: 1}.packForTest()); err != nil {
		t.Fatal(err)
	}
	if !ops.on {
		t.Fatal("expected Identify(true) to have been called")
	}
}

func TestHandleSetupBtConstExtRequiresFD(t *testing.T) {
	dev, _ := newTestDevice(t, CapLoopBack, nil) // no CapFD

	req := ControlRequest{Recipient: RecipientInterface, Request: reqBtConstExt, Value: 0}
	if _, err := dev.HandleSetup(req, nil); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("got %v, want ErrNotSupported", err)
	}
}

func TestHandleSetupBtConstExtWithFD(t *testing.T) {
	dev, _ := newTestDevice(t, CapLoopBack|CapFD, nil)

	req := ControlRequest{Recipient: RecipientInterface, Request: reqBtConstExt, Value: 0}
	resp, err := dev.HandleSetup(req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp) != btConstExtLen {
		t.Fatalf("len = %d, want %d", len(resp), btConstExtLen)
	}
}

func TestHandleSetupGetState(t *testing.T) {
	dev, ctrl := newTestDevice(t, CapLoopBack, nil)
	ctrl.injectStateChange(StateBusOff, 5, 9)

	req := ControlRequest{Recipient: RecipientInterface, Request: reqGetState, Value: 0}
	resp, err := dev.HandleSetup(req, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := unpackDeviceStateForTest(resp)
	if err != nil {
		t.Fatal(err)
	}
	if s.State != ChannelStateBusOff || s.RxErr != 5 || s.TxErr != 9 {
		t.Fatalf("got %+v, want busoff/5/9", s)
	}
}

func TestHandleSetupUnsupportedRequestsRejected(t *testing.T) {
	dev, _ := newTestDevice(t, CapLoopBack, nil)

	for _, req := range []uint8{reqBerr, reqGetUserID, reqSetUserID} {
		r := ControlRequest{Recipient: RecipientInterface, Request: req, Value: 0}
		if _, err := dev.HandleSetup(r, nil); !errors.Is(err, ErrNotSupported) {
			t.Fatalf("request %d: got %v, want ErrNotSupported", req, err)
		}
	}
}

func TestHandleSetupDeviceConfigReportsChannelCount(t *testing.T) {
	dev, err := New(3, Config{SoftwareVersion: 7, HardwareVersion: 8})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		dev.RegisterChannel(i, newFakeController(CapLoopBack), fakeOpsNone{}, LEDLines{Activity: true})
	}

	req := ControlRequest{Recipient: RecipientInterface, Request: reqDeviceConfig, Value: 0}
	resp, err := dev.HandleSetup(req, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp[3] != 2 { // icount = nchannels - 1
		t.Fatalf("icount byte = %d, want 2", resp[3])
	}
}

// packForTest/unpackDeviceStateForTest expose the package-private wire
// helpers with names that read naturally from table-driven test cases.
func (m deviceMode) packForTest() []byte {
	b := make([]byte, deviceModeLen)
	binary.LittleEndian.PutUint32(b[0:4], m.Mode)
	binary.LittleEndian.PutUint32(b[4:8], m.Flags)
	return b
}

func (m identifyMode) packForTest() []byte {
	b := make([]byte, identifyModeLen)
	binary.LittleEndian.PutUint32(b, m.Mode)
	return b
}

func unpackDeviceStateForTest(b []byte) (deviceState, error) {
	var s deviceState
	if len(b) != deviceStateLen {
		return s, errInvalid("device_state")
	}
	s.State = binary.LittleEndian.Uint32(b[0:4])
	s.RxErr = binary.LittleEndian.Uint32(b[4:8])
	s.TxErr = binary.LittleEndian.Uint32(b[8:12])
	return s, nil
}
