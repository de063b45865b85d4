package gateway

import (
	"pzemgateway/pkg/runtime"
)

const gateway = "gateways/gateway"

// GatewayMeta is the persisted identity of this gateway instance.
type GatewayMeta struct {
	runtime.ObjectMeta
	Secret string `json:"secret,omitempty"`
}

// HostInfo is a live snapshot of the machine carrying the gateway.
type HostInfo struct {
	Hostname      string  `json:"hostname"`
	OS            string  `json:"os"`
	Platform      string  `json:"platform"`
	UptimeSeconds uint64  `json:"uptimeSeconds"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	MemoryTotal   uint64  `json:"memoryTotal"`
}

// Status is the payload of the gateway status endpoint.
type Status struct {
	Gateway *GatewayMeta `json:"gateway"`
	Host    *HostInfo    `json:"host,omitempty"`
}
