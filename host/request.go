package host

import "github.com/ardnew/pmausb/device"

const (
	standardIn  = device.RequestDirectionDeviceToHost | device.RequestTypeStandard
	standardOut = device.RequestDirectionHostToDevice | device.RequestTypeStandard
)

// GetDescriptorRequest returns a GET_DESCRIPTOR request for length bytes
// of the descriptor typ at index. langID selects the language of string
// descriptors and is zero otherwise.
func GetDescriptorRequest(typ, index uint8, langID, length uint16) device.SetupPacket {
	return device.SetupPacket{
		RequestType: standardIn | device.RequestRecipientDevice,
		Request:     device.RequestGetDescriptor,
		Value:       uint16(typ)<<8 | uint16(index),
		Index:       langID,
		Length:      length,
	}
}

// SetAddressRequest returns a SET_ADDRESS request.
func SetAddressRequest(address uint8) device.SetupPacket {
	return device.SetupPacket{
		RequestType: standardOut | device.RequestRecipientDevice,
		Request:     device.RequestSetAddress,
		Value:       uint16(address),
	}
}

// SetConfigurationRequest returns a SET_CONFIGURATION request.
func SetConfigurationRequest(value uint8) device.SetupPacket {
	return device.SetupPacket{
		RequestType: standardOut | device.RequestRecipientDevice,
		Request:     device.RequestSetConfiguration,
		Value:       uint16(value),
	}
}

// GetStatusRequest returns a GET_STATUS request to recipient.
func GetStatusRequest(recipient uint8, index uint16) device.SetupPacket {
	return device.SetupPacket{
		RequestType: standardIn | recipient,
		Request:     device.RequestGetStatus,
		Index:       index,
		Length:      2,
	}
}

// FeatureRequest returns a SET_FEATURE request, or CLEAR_FEATURE when set
// is false.
func FeatureRequest(set bool, recipient uint8, feature, index uint16) device.SetupPacket {
	req := uint8(device.RequestClearFeature)
	if set {
		req = device.RequestSetFeature
	}
	return device.SetupPacket{
		RequestType: standardOut | recipient,
		Request:     req,
		Value:       feature,
		Index:       index,
	}
}

// VendorRequest returns a device-to-host vendor request.
func VendorRequest(request uint8, value, index, length uint16) device.SetupPacket {
	return device.SetupPacket{
		RequestType: device.RequestDirectionDeviceToHost | device.RequestTypeVendor |
			device.RequestRecipientDevice,
		Request: request,
		Value:   value,
		Index:   index,
		Length:  length,
	}
}
