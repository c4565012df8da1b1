// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import "testing"

type recordingOps struct {
	events []LEDEvent
}

func (r *recordingOps) Event(_ int, ev LEDEvent) {
	r.events = append(r.events, ev)
}

func (r *recordingOps) last() LEDEvent {
	if len(r.events) == 0 {
		return -1
	}
	return r.events[len(r.events)-1]
}

func TestLEDMachineStartStop(t *testing.T) {
	ops := &recordingOps{}
	m := newLEDMachine(0, ops, LEDLines{Activity: true})

	m.handle(EventChannelStarted)
	if ops.last() != LEDStateOn {
		t.Fatalf("last event = %v, want LEDStateOn", ops.last())
	}

	m.handle(EventChannelStopped)
	if ops.last() != LEDStateOff {
		t.Fatalf("last event = %v, want LEDStateOff", ops.last())
	}
}

func TestLEDMachineSharedActivityLine(t *testing.T) {
	ops := &recordingOps{}
	m := newLEDMachine(0, ops, LEDLines{Activity: true})
	m.handle(EventChannelStarted)

	m.handle(EventActivityRX)
	m.handle(EventTick) // countdown 2->1, rxOn = true
	if ops.last() != LEDActivityOn {
		t.Fatalf("last event = %v, want LEDActivityOn", ops.last())
	}

	m.handle(EventTick) // countdown 1->0, rxOn = false
	if ops.last() != LEDActivityOff {
		t.Fatalf("last event = %v, want LEDActivityOff", ops.last())
	}
}

func TestLEDMachineSeparateRXTXLines(t *testing.T) {
	ops := &recordingOps{}
	m := newLEDMachine(0, ops, LEDLines{ActivityRX: true, ActivityTX: true})
	m.handle(EventChannelStarted)

	m.handle(EventActivityTX)
	m.handle(EventTick)
	if ops.last() != LEDActivityTXOn {
		t.Fatalf("last event = %v, want LEDActivityTXOn", ops.last())
	}
}

func TestLEDMachineActivityLowPassDropsRearm(t *testing.T) {
	ops := &recordingOps{}
	m := newLEDMachine(0, ops, LEDLines{Activity: true})
	m.handle(EventChannelStarted)

	m.handle(EventActivityRX)
	m.handle(EventActivityRX) // rearm while countdown already running: dropped
	if m.rxCountdown != ledActivityTicks {
		t.Fatalf("rxCountdown = %d, want unchanged at %d", m.rxCountdown, ledActivityTicks)
	}
}

func TestLEDMachineStateLineInversion(t *testing.T) {
	ops := &recordingOps{}
	m := newLEDMachine(0, ops, LEDLines{State: true})
	m.handle(EventChannelStarted)

	m.handle(EventActivityRX)
	m.handle(EventTick)
	if ops.last() != LEDStateInvertOn {
		t.Fatalf("last event = %v, want LEDStateInvertOn", ops.last())
	}
}

func TestLEDMachineIdentifyOverridesAnyState(t *testing.T) {
	ops := &recordingOps{}
	m := newLEDMachine(0, ops, LEDLines{Activity: true})
	m.handle(EventChannelStarted)

	m.handle(EventIdentifyOn)
	if m.state != ledStateIdentify {
		t.Fatal("expected identify state to override normal-started")
	}

	for i := 0; i < ledIdentifyTicks/2; i++ {
		m.handle(EventTick)
	}
	if ops.last() != LEDIdentifyOn {
		t.Fatalf("last event = %v, want LEDIdentifyOn", ops.last())
	}

	m.handle(EventIdentifyOff)
	if m.state != ledStateNormalStarted {
		t.Fatal("expected identify-off to restore the prior started state")
	}
	if ops.last() != LEDStateOn {
		t.Fatalf("last event = %v, want LEDStateOn restored", ops.last())
	}
}

func TestLEDMachineIdentifyOffRestoresStopped(t *testing.T) {
	ops := &recordingOps{}
	m := newLEDMachine(0, ops, LEDLines{Activity: true})

	m.handle(EventIdentifyOn)
	m.handle(EventIdentifyOff)

	if m.state != ledStateNormalStopped {
		t.Fatal("expected identify-off to restore normal-stopped when never started")
	}
	if ops.last() != LEDStateOff {
		t.Fatalf("last event = %v, want LEDStateOff", ops.last())
	}
}
