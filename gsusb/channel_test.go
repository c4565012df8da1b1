// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"errors"
	"testing"
)

func TestFeaturesHas(t *testing.T) {
	f := FeatureLoopBack | FeatureListenOnly
	if !f.Has(FeatureLoopBack) {
		t.Fatal("expected FeatureLoopBack set")
	}
	if f.Has(FeatureFD) {
		t.Fatal("did not expect FeatureFD set")
	}
	if !f.Has(FeatureLoopBack | FeatureListenOnly) {
		t.Fatal("expected both bits set")
	}
}

func TestFeaturesFromCapabilities(t *testing.T) {
	f := featuresFromCapabilities(CapLoopBack | CapFD)
	if !f.Has(FeatureLoopBack) {
		t.Fatal("expected FeatureLoopBack")
	}
	if !f.Has(FeatureFD | FeatureBtConstExt) {
		t.Fatal("CapFD must imply FeatureFD and FeatureBtConstExt")
	}
	if f.Has(FeatureOneShot) {
		t.Fatal("did not expect FeatureOneShot")
	}
}

type fakeOpsNone struct{}

func (fakeOpsNone) Event(int, LEDEvent) {}

type fakeOpsFull struct {
	fakeOpsNone
}

func (fakeOpsFull) Timestamp() (uint32, error)        { return 0, nil }
func (fakeOpsFull) Identify(int, bool) error          { return nil }
func (fakeOpsFull) SetTermination(int, bool) error    { return nil }
func (fakeOpsFull) GetTermination(int) (bool, error)  { return false, nil }

func TestFeaturesFromOpsNone(t *testing.T) {
	f := featuresFromOps(fakeOpsNone{}, true, true)
	if f != 0 {
		t.Fatalf("got %v, want no optional features", f)
	}
}

func TestFeaturesFromOpsFullRespectsBuildOptions(t *testing.T) {
	f := featuresFromOps(fakeOpsFull{}, false, false)
	if f.Has(FeatureHwTimestamp) || f.Has(FeatureTermination) {
		t.Fatal("build options disabled must suppress Timestamp/Termination features")
	}
	if !f.Has(FeatureIdentify) {
		t.Fatal("Identify has no build option gate")
	}

	f = featuresFromOps(fakeOpsFull{}, true, true)
	if !f.Has(FeatureHwTimestamp) || !f.Has(FeatureTermination) || !f.Has(FeatureIdentify) {
		t.Fatalf("got %v, want all optional features enabled", f)
	}
}

func newTestChannel(t *testing.T, caps Capabilities) (*Channel, *fakeController) {
	t.Helper()
	ctrl := newFakeController(caps)
	return &Channel{
		index:      0,
		controller: ctrl,
		ops:        fakeOpsNone{},
		features:   featuresFromCapabilities(caps),
	}, ctrl
}

func TestChannelResetClearsState(t *testing.T) {
	c, _ := newTestChannel(t, CapLoopBack)
	c.mode.Store(uint32(FeatureLoopBack))
	c.started.Store(true)
	c.busoff.Store(true)
	c.overflow.Store(3)

	if err := c.reset(); err != nil {
		t.Fatal(err)
	}
	if c.Mode() != 0 || c.Started() || c.busoff.Load() || c.overflow.Load() != 0 {
		t.Fatal("reset did not clear all state")
	}
}

func TestChannelResetToleratesNoDevice(t *testing.T) {
	c, ctrl := newTestChannel(t, CapLoopBack)
	ctrl.stopErr = ErrNoDevice

	if err := c.reset(); err != nil {
		t.Fatalf("reset must tolerate ErrNoDevice, got %v", err)
	}
}

func TestChannelResetPropagatesOtherErrors(t *testing.T) {
	c, ctrl := newTestChannel(t, CapLoopBack)
	ctrl.stopErr = errors.New("boom")

	if err := c.reset(); err == nil {
		t.Fatal("expected reset to propagate a non-ErrNoDevice failure")
	}
}

func TestChannelOverflowTakeOnce(t *testing.T) {
	c, _ := newTestChannel(t, CapLoopBack)

	if c.takeOverflow() {
		t.Fatal("expected no overflow pending initially")
	}
	c.incOverflow()
	c.incOverflow()

	if !c.takeOverflow() {
		t.Fatal("expected first takeOverflow to report pending")
	}
	if !c.takeOverflow() {
		t.Fatal("expected second takeOverflow to report pending")
	}
	if c.takeOverflow() {
		t.Fatal("expected no overflow pending after draining counter")
	}
}
