// Package ble connects the gesture controller to a physical ring over
// Bluetooth Low Energy using tinygo.org/x/bluetooth. It scans for the ring
// by advertised name, subscribes to the notify characteristic, forwards
// every notification into the controller, and writes the controller's
// command frames to the write characteristic.
package ble

import "tinygo.org/x/bluetooth"

// GATT layout of the RF03 ring: one custom service with a write and a notify
// characteristic (Nordic UART-style).
var (
	ServiceUUID    = mustUUID("6e40fff0-b5a3-f393-e0a9-e50e24dcca9e")
	WriteCharUUID  = mustUUID("6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	NotifyCharUUID = mustUUID("6e400003-b5a3-f393-e0a9-e50e24dcca9e")
)

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic("ble: bad uuid literal: " + s)
	}
	return u
}
