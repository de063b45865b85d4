package generic

import (
	deviceruntime "pzemgateway/pkg/device/runtime"
	"pzemgateway/pkg/runtime"
	v1 "pzemgateway/pkg/v1"
)

const (
	DeviceTypePzem = "pzem"
)

var DeviceTypeMap = map[string]func() v1.DeviceType{
	DeviceTypePzem: func() v1.DeviceType { return &v1.PzemDevice{} },
}

var DeviceTypeObjectMap = map[string]runtime.Device{
	DeviceTypePzem: &deviceruntime.MeterDevice{},
}
