package constant

import "errors"

var (
	ErrDeviceType         = errors.New("unsupported device type")
	ErrConnectDevice      = errors.New("unable to connect to device")
	ErrDeviceServerClosed = errors.New("device server closed")
	ErrMeterModel         = errors.New("unsupported meter model")
	ErrMeterAddress       = errors.New("meter address outside assignable range")
	ErrMeterExists        = errors.New("meter already registered")
	ErrPortNotFound       = errors.New("port not registered")
	ErrPortExists         = errors.New("port already registered")
	ErrAddressInUse       = errors.New("slave address already in use on this port")
)
