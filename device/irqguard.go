//go:build !usbdebug

package device

func assertInterruptContext(*Device) {}
