// gs_usb protocol core
// https://github.com/usbarmory/gsusb
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package gsusb implements the Geschwister Schneider USB/CAN ("gs_usb")
// device-class protocol: control-request dispatch, the bulk-endpoint
// frame pipeline and the per-channel LED state machine that bridge a
// host PC to one or more CAN controllers over USB.
//
// The package never talks to real USB or CAN hardware directly. It is
// driven by a transport (see the sibling transport/ packages) that
// delivers control requests and bulk transfers, and by one or more
// Controller implementations (see the canbus package) that represent
// the CAN controllers behind each channel.
package gsusb
