package runtime

import (
	"fmt"
	"net/url"
	"time"
)

var (
	ErrNotObject = fmt.Errorf("object does not implement the Object interfaces")
)

type ObjectMetaAccessor interface {
	GetObjectMeta() Object
}

type Object interface {
	GetName() string
	SetName(string)
	GetID() string
	SetID(string)
	GetVersion() string
	SetVersion(string)
	GetModTime() time.Time
	SetModTime(time.Time)
}

// Device is a meter registered as a gateway resource.
type Device interface {
	Object
	GetDeviceType() string
	SetDeviceType(string)
	GetModel() string
	SetModel(string)
	GetCollectStatus() string
	SetCollectStatus(string)
}

type ObjectMeta struct {
	Name    string    `json:"name"`
	ID      string    `json:"id"`
	Version string    `json:"eTag"`
	ModTime time.Time `json:"modTime"`
}

type DeviceMeta struct {
	ObjectMeta
	DeviceType    string `json:"deviceType"`
	Model         string `json:"model"`
	CollectStatus string `json:"collectStatus"`
}

type CreateOptions struct {
	Query url.Values
}

type GetOptions struct {
	Version string
	Query   url.Values
}

type ListOptions struct {
	Filter map[string]interface{}
	Query  url.Values
}

type UpdateOptions struct {
	Version string
	Query   url.Values
}

type DeleteOptions struct {
	Version string
	Query   url.Values
}

type Time time.Time

func (d *DeviceMeta) GetDeviceType() string { return d.DeviceType }

func (d *DeviceMeta) SetDeviceType(s string) { d.DeviceType = s }

func (d *DeviceMeta) GetModel() string { return d.Model }

func (d *DeviceMeta) SetModel(model string) { d.Model = model }

func (d *DeviceMeta) GetCollectStatus() string { return d.CollectStatus }

func (d *DeviceMeta) SetCollectStatus(status string) { d.CollectStatus = status }

func (meta *ObjectMeta) GetName() string              { return meta.Name }
func (meta *ObjectMeta) SetName(name string)          { meta.Name = name }
func (meta *ObjectMeta) GetID() string                { return meta.ID }
func (meta *ObjectMeta) SetID(id string)              { meta.ID = id }
func (meta *ObjectMeta) GetVersion() string           { return meta.Version }
func (meta *ObjectMeta) SetVersion(version string)    { meta.Version = version }
func (meta *ObjectMeta) GetModTime() time.Time        { return meta.ModTime }
func (meta *ObjectMeta) SetModTime(modTime time.Time) { meta.ModTime = modTime }

func Accessor(obj interface{}) (Object, error) {
	switch t := obj.(type) {
	case Object:
		return t, nil
	case ObjectMetaAccessor:
		if m := t.GetObjectMeta(); m != nil {
			return m, nil
		}
		return nil, ErrNotObject
	default:
		return nil, ErrNotObject
	}
}

func AccessorDevice(obj interface{}) (Device, error) {
	switch t := obj.(type) {
	case Device:
		return t, nil
	default:
		return nil, ErrNotObject
	}
}
