package v1

// Action is one control verb delivered to a device.
type Action struct {
	Name  string      `json:"name" binding:"required,min=1,max=64,excludesall=\u002F\u005C"`
	Value interface{} `json:"value,omitempty"`
}
