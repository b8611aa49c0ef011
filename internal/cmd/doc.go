// Package cmd implements the pmausb commands. Each command builds a
// device from a board profile, attaches it to a simulated peripheral and
// drives it from the host side.
package cmd
