// Package hid implements the control side of a USB Human Interface Device
// interface.
//
// A [HID] answers GET_DESCRIPTOR for its HID and report descriptors,
// streaming report descriptors longer than one packet, and the class
// requests SET_REPORT, GET_IDLE, SET_IDLE, GET_PROTOCOL and SET_PROTOCOL.
// It also handles bus reset for its interrupt IN endpoint.
//
// # Usage
//
//	kbd := hid.New(0, 1, hid.KeyboardReportDescriptor, hid.WithBoot(hid.ProtocolKeyboard))
//	desc, _ := device.Build(identity, kbd.Descriptors(0))
//	dev, _ := device.New(peripheral, device.Config{
//	    Descriptors: desc,
//	    Interfaces:  []device.InterfaceHandler{kbd},
//	    Endpoints:   []device.EndpointHandler{kbd},
//	})
//
// The package includes common report descriptors:
//
//   - KeyboardReportDescriptor: Standard 8-byte keyboard report
//   - MouseReportDescriptor: Standard 4-byte mouse report (3 buttons, X/Y/wheel)
package hid
