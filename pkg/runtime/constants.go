package runtime

// ETagMaxInitialValue just a value, meaningless
const ETagMaxInitialValue int64 = 3294967296

type CollectStatus int8

const (
	Collecting CollectStatus = iota
	CollectingError
	Unconnected
	Stopped
	Error
)

var CollectStatusToString = map[CollectStatus]string{
	Collecting:      "collecting",
	CollectingError: "collectingError",
	Unconnected:     "unconnected",
	Stopped:         "stopped",
	Error:           "error",
}

var StringToCollectStatus = map[string]CollectStatus{
	"collecting":      Collecting,
	"collectingError": CollectingError,
	"unconnected":     Unconnected,
	"stopped":         Stopped,
	"error":           Error,
}

type DeviceStatusCh int8

const (
	Start DeviceStatusCh = iota
	Stop
	Restart
)

var StringToDeviceStatusCh = map[string]DeviceStatusCh{
	"start":   Start,
	"stop":    Stop,
	"restart": Restart,
}
