package device

import (
	"encoding/binary"
	"strings"
)

// BOS and WebUSB descriptor constants.
const (
	BOSDescriptorSize    = 5
	WebUSBCapabilitySize = 24

	DeviceCapabilityPlatform = 0x05

	// WebUSBRequestGetURL is the wIndex of the vendor GET_URL request.
	WebUSBRequestGetURL = 0x02

	// USBVersionBOS is the bcdUSB a device must report to be asked for
	// its BOS descriptor.
	USBVersionBOS = 0x0210
	USBVersion20  = 0x0200
)

// WebUSB URL scheme prefixes.
const (
	URLSchemeHTTP  = 0x00
	URLSchemeHTTPS = 0x01
	URLSchemeNone  = 0xFF
)

// webUSBPlatformUUID is {3408b638-09a9-47a0-8bfd-a0768815b665} in wire order.
var webUSBPlatformUUID = [16]byte{
	0x38, 0xB6, 0x08, 0x34, 0xA9, 0x09, 0xA0, 0x47,
	0x8B, 0xFD, 0xA0, 0x76, 0x88, 0x15, 0xB6, 0x65,
}

// WebUSBBOS returns a BOS descriptor carrying a single WebUSB platform
// capability. Landing page index 1 is advertised.
func WebUSBBOS(vendorCode uint8) []byte {
	buf := make([]byte, BOSDescriptorSize+WebUSBCapabilitySize)
	buf[0] = BOSDescriptorSize
	buf[1] = DescriptorTypeBOS
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(buf)))
	buf[4] = 1

	pc := buf[BOSDescriptorSize:]
	pc[0] = WebUSBCapabilitySize
	pc[1] = DescriptorTypeDeviceCapability
	pc[2] = DeviceCapabilityPlatform
	pc[3] = 0
	copy(pc[4:20], webUSBPlatformUUID[:])
	binary.LittleEndian.PutUint16(pc[20:22], 0x0100)
	pc[22] = vendorCode
	pc[23] = 1
	return buf
}

// WebUSBURLDescriptor encodes url as a WebUSB URL descriptor. Known
// scheme prefixes are moved into the bScheme field.
func WebUSBURLDescriptor(url string) []byte {
	scheme := uint8(URLSchemeNone)
	switch {
	case strings.HasPrefix(url, "https://"):
		scheme, url = URLSchemeHTTPS, url[len("https://"):]
	case strings.HasPrefix(url, "http://"):
		scheme, url = URLSchemeHTTP, url[len("http://"):]
	}
	if len(url) > 255-3 {
		url = url[:255-3]
	}
	buf := make([]byte, 3+len(url))
	buf[0] = uint8(len(buf))
	buf[1] = DescriptorTypeWebUSBURL
	buf[2] = scheme
	copy(buf[3:], url)
	return buf
}

// ParseWebUSBURL decodes a WebUSB URL descriptor back into a URL string.
func ParseWebUSBURL(desc []byte) (string, bool) {
	if len(desc) < 3 || desc[1] != DescriptorTypeWebUSBURL || int(desc[0]) > len(desc) {
		return "", false
	}
	rest := string(desc[3:desc[0]])
	switch desc[2] {
	case URLSchemeHTTP:
		return "http://" + rest, true
	case URLSchemeHTTPS:
		return "https://" + rest, true
	}
	return rest, true
}
