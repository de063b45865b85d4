package runtime

import (
	"errors"

	"pzemgateway/pkg/runtime"
	v1 "pzemgateway/pkg/v1"
)

var (
	ErrDeviceType = errors.New("unsupported device type")
)

// MeterDevice is the persisted resource describing one registered meter and
// the serial bus carrying it.
type MeterDevice struct {
	runtime.DeviceMeta
	SlaveAddr          uint8          `json:"slaveAddr"`
	PollIntervalMillis uint           `json:"pollIntervalMillis,omitempty"`
	Bus                *v1.BusAddress `json:"bus"`

	// pool bindings, assigned at registration and stable across restarts
	MeterID uint8 `json:"meterId"`
	PortID  uint8 `json:"portId"`
}

var _ runtime.Device = (*MeterDevice)(nil)

func (d *MeterDevice) DeepCopy() *MeterDevice {
	out := *d
	if d.Bus != nil {
		bus := *d.Bus
		if d.Bus.Option != nil {
			opt := *d.Bus.Option
			bus.Option = &opt
		}
		out.Bus = &bus
	}
	return &out
}
