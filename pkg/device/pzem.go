package device

import (
	"errors"
	"strconv"
	"strings"
	"time"

	deviceruntime "pzemgateway/pkg/device/runtime"
	"pzemgateway/pkg/generic"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
	"pzemgateway/pkg/runtime"
	"pzemgateway/pkg/utils/randutil"
	"pzemgateway/pkg/utils/uuidutil"
	v1 "pzemgateway/pkg/v1"
)

var DeviceManagers = map[string]DeviceManager{
	generic.DeviceTypePzem: &PzemDeviceManager{},
}

type PzemDeviceManager struct {
}

func validateMeterName(name string) error {
	if strings.ContainsAny(name, "/\\") {
		return errors.New("name may not contain path separators")
	}
	return nil
}

func (m *PzemDeviceManager) CreateDevice(deviceType v1.DeviceType) (runtime.Device, error) {
	pzemDevice, ok := deviceType.(*v1.PzemDevice)
	if !ok {
		return nil, deviceruntime.ErrDeviceType
	}
	if _, known := pzemruntime.StringToModel[pzemDevice.Model]; !known || pzemDevice.Model == pzemruntime.ModelToString[pzemruntime.ModelNone] {
		return nil, pzemruntime.ErrUnsupportedModel
	}
	if errs := runtime.Validate(pzemDevice.Name, validateMeterName); len(errs) > 0 {
		return nil, errs.ToAggregate()
	}

	d := &deviceruntime.MeterDevice{
		DeviceMeta: runtime.DeviceMeta{
			ObjectMeta: runtime.ObjectMeta{
				Name:    pzemDevice.Name,
				ID:      uuidutil.UUID(),
				Version: strconv.FormatUint(randutil.Uint64n(), 10),
				ModTime: time.Now(),
			},
			DeviceType:    pzemDevice.DeviceType,
			Model:         pzemDevice.Model,
			CollectStatus: runtime.CollectStatusToString[runtime.Stopped],
		},
		SlaveAddr:          pzemDevice.SlaveAddr,
		PollIntervalMillis: pzemDevice.PollIntervalMillis,
		Bus:                pzemDevice.Bus,
	}
	return d, nil
}

func (m *PzemDeviceManager) DeleteDevice(device runtime.Device) (runtime.Device, error) {
	return &deviceruntime.MeterDevice{DeviceMeta: runtime.DeviceMeta{
		ObjectMeta: runtime.ObjectMeta{ID: device.GetID(), Version: device.GetVersion()},
		DeviceType: device.GetDeviceType(),
		Model:      device.GetModel(),
	}}, nil
}

func (m *PzemDeviceManager) UpdateValidation(deviceType v1.DeviceType, device runtime.Device) error {
	pzemDevice, ok := deviceType.(*v1.PzemDevice)
	if !ok {
		return deviceruntime.ErrDeviceType
	}
	// the meter family is fixed for the lifetime of the resource
	if pzemDevice.Model != device.GetModel() {
		return pzemruntime.ErrUnsupportedModel
	}
	return nil
}

func (m *PzemDeviceManager) UpdateDevice(id string, deviceType v1.DeviceType, device runtime.Device) (runtime.Device, error) {
	pzemDevice, ok := deviceType.(*v1.PzemDevice)
	if !ok {
		return nil, deviceruntime.ErrDeviceType
	}
	updated, ok := device.(*deviceruntime.MeterDevice)
	if !ok {
		return nil, deviceruntime.ErrDeviceType
	}

	updated.Name = pzemDevice.Name
	updated.SlaveAddr = pzemDevice.SlaveAddr
	updated.PollIntervalMillis = pzemDevice.PollIntervalMillis
	updated.Bus = pzemDevice.Bus
	updated.ModTime = time.Now()
	return updated, nil
}
