// Package board loads board profiles and assembles them into a device
// configuration.
//
// A profile names the device identity, power attributes, the optional
// WebUSB landing page and the optional HID interface. Profiles are read
// from YAML, TOML or JSON.
package board
