// Package protocoladdr identifies a remote device a session is
// established with, per spec §6.2's ProtocolAddress.
package protocoladdr

import "fmt"

// Address names one device of one logical user: "id.deviceId".
// Grounded on client/chatapp.go's userID/recipientID strings,
// generalized into the multi-device-aware shape the rest of the
// retrieved pack's store interfaces (gwillem-signal-go, RadicalApp's
// libsignal-protocol-go) expect.
type Address struct {
	ID       string
	DeviceID uint32
}

// New builds an Address.
func New(id string, deviceID uint32) Address {
	return Address{ID: id, DeviceID: deviceID}
}

// String renders the address as "id.deviceId", the form used as a
// store/job-queue bucket key.
func (a Address) String() string {
	return fmt.Sprintf("%s.%d", a.ID, a.DeviceID)
}
