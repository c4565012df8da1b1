// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package gsusb

import (
	"context"
	"time"
)

// LED tick period and identify blink period (§4.6).
const (
	ledTickPeriod    = 50 * time.Millisecond
	ledActivityTicks = 2
	ledIdentifyTicks = 20
)

type ledState int

const (
	ledStateNormalStopped ledState = iota
	ledStateNormalStarted
	ledStateIdentify
)

// LEDLines describes which physical LED lines a board wired up for a
// channel, so the state machine knows how to render activity during
// NORMAL_STARTED (§4.6: shared single activity LED, or state-LED
// inversion, when separate RX/TX lines are absent).
type LEDLines struct {
	State      bool
	ActivityRX bool
	ActivityTX bool
	Activity   bool // single LED shared by RX and TX
}

// ledMachine is the per-channel LED finite-state machine. All mutable
// fields are touched only from the run goroutine; events reach it
// through the buffered events channel.
type ledMachine struct {
	channel int
	ops     Operations
	lines   LEDLines

	events chan ChannelEvent

	state   ledState
	started bool

	rxCountdown, txCountdown int
	rxOn, txOn               bool

	lastRX, lastTX, lastShared, lastInvert bool

	blinkTick int
	blinkOn   bool
}

func newLEDMachine(channel int, ops Operations, lines LEDLines) *ledMachine {
	return &ledMachine{
		channel: channel,
		ops:     ops,
		lines:   lines,
		events:  make(chan ChannelEvent, 32),
	}
}

// send enqueues an event for the LED goroutine. A full queue means
// events are arriving faster than the LED goroutine drains them; the
// send is dropped rather than blocking the caller (§5: workers and the
// control dispatcher must never block on the LED path).
func (m *ledMachine) send(ev ChannelEvent) {
	select {
	case m.events <- ev:
	default:
	}
}

func (m *ledMachine) run(ctx context.Context) {
	ticker := time.NewTicker(ledTickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.handle(ev)
		case <-ticker.C:
			m.handle(EventTick)
		}
	}
}

func (m *ledMachine) handle(ev ChannelEvent) {
	// IDENTIFY_ON is reachable from any state (§4.6).
	if ev == EventIdentifyOn {
		if m.state != ledStateIdentify {
			m.state = ledStateIdentify
			m.blinkTick = 0
			m.blinkOn = false
			m.ops.Event(m.channel, LEDIdentifyOff)
		}
		return
	}

	if ev == EventIdentifyOff {
		if m.state == ledStateIdentify {
			if m.started {
				m.enterStarted()
			} else {
				m.enterStopped()
			}
		}
		return
	}

	switch m.state {
	case ledStateNormalStopped:
		if ev == EventChannelStarted {
			m.started = true
			m.enterStarted()
		}
	case ledStateNormalStarted:
		switch ev {
		case EventChannelStopped:
			m.started = false
			m.enterStopped()
		case EventActivityRX:
			m.armActivity(&m.rxCountdown)
		case EventActivityTX:
			m.armActivity(&m.txCountdown)
		case EventTick:
			m.tickActivity()
		}
	case ledStateIdentify:
		if ev == EventTick {
			m.tickIdentify()
		}
	}
}

// armActivity arms a fresh 2-tick countdown unless one is already
// running, in which case the event is dropped: the low-pass filter
// from §4.6.
func (m *ledMachine) armActivity(ctr *int) {
	if *ctr > 0 {
		return
	}
	*ctr = ledActivityTicks
}

// stepCountdown decrements ctr, turning *on true exactly at the
// midpoint tick and false once it reaches zero (§4.6).
func stepCountdown(ctr *int, on *bool) {
	if *ctr == 0 {
		return
	}
	*ctr--
	*on = *ctr == 1
}

func (m *ledMachine) tickActivity() {
	stepCountdown(&m.rxCountdown, &m.rxOn)
	stepCountdown(&m.txCountdown, &m.txOn)
	m.applyActivityLEDs()
}

func (m *ledMachine) applyActivityLEDs() {
	switch {
	case m.lines.ActivityRX && m.lines.ActivityTX:
		emitEdge(m.ops, m.channel, &m.lastRX, m.rxOn, LEDActivityRXOn, LEDActivityRXOff)
		emitEdge(m.ops, m.channel, &m.lastTX, m.txOn, LEDActivityTXOn, LEDActivityTXOff)
	case m.lines.Activity:
		shared := m.rxOn || m.txOn
		emitEdge(m.ops, m.channel, &m.lastShared, shared, LEDActivityOn, LEDActivityOff)
	case m.lines.State:
		active := m.rxOn || m.txOn
		emitEdge(m.ops, m.channel, &m.lastInvert, active, LEDStateInvertOn, LEDStateInvertOff)
	}
}

func emitEdge(ops Operations, channel int, last *bool, on bool, evOn, evOff LEDEvent) {
	if on == *last {
		return
	}
	*last = on
	if on {
		ops.Event(channel, evOn)
	} else {
		ops.Event(channel, evOff)
	}
}

func (m *ledMachine) tickIdentify() {
	m.blinkTick++
	if m.blinkTick < ledIdentifyTicks/2 {
		return
	}
	m.blinkTick = 0
	m.blinkOn = !m.blinkOn
	if m.blinkOn {
		m.ops.Event(m.channel, LEDIdentifyOn)
	} else {
		m.ops.Event(m.channel, LEDIdentifyOff)
	}
}

func (m *ledMachine) enterStarted() {
	m.state = ledStateNormalStarted
	m.rxCountdown, m.txCountdown = 0, 0
	m.rxOn, m.txOn = false, false
	m.lastRX, m.lastTX, m.lastShared, m.lastInvert = false, false, false, false
	m.ops.Event(m.channel, LEDStateOn)
}

func (m *ledMachine) enterStopped() {
	m.state = ledStateNormalStopped
	m.rxCountdown, m.txCountdown = 0, 0
	m.rxOn, m.txOn = false, false
	m.ops.Event(m.channel, LEDStateOff)
}
