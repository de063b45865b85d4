package v1

// DeviceType is the REST-facing shape of a device create request.
type DeviceType interface {
	GetDeviceType() string
}

type DeviceMeta struct {
	Name       string `json:"name" binding:"required,min=1,max=64,excludesall=\u002F\u005C"`
	DeviceType string `json:"deviceType" binding:"required"`
}

func (d *DeviceMeta) GetDeviceType() string {
	return d.DeviceType
}
