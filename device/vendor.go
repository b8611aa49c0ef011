package device

import "github.com/ardnew/pmausb/pkg"

// VendorRequest maps a vendor request code and wIndex to a fixed
// responder. The responder returns a descriptor-like buffer whose first
// byte is its length.
type VendorRequest struct {
	Request uint8
	Index   uint16
	Respond func() []byte
}

// WebUSBRequest returns the GET_URL entry serving url under vendorCode.
func WebUSBRequest(vendorCode uint8, url string) VendorRequest {
	desc := WebUSBURLDescriptor(url)
	return VendorRequest{
		Request: vendorCode,
		Index:   WebUSBRequestGetURL,
		Respond: func() []byte { return desc },
	}
}

func (d *Device) vendorRequest(s *SetupPacket) error {
	for i := range d.vendor {
		v := &d.vendor[i]
		if v.Request != s.Request || v.Index != s.Index {
			continue
		}
		desc := v.Respond()
		if len(desc) == 0 {
			return pkg.ErrNotSupported
		}
		d.sendDescriptor(desc[:min(int(desc[0]), len(desc))], false)
		return nil
	}
	return pkg.ErrNotSupported
}
