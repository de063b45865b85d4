package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"k8s.io/klog/v2"

	"pzemgateway/pkg/apis"
	"pzemgateway/pkg/apis/response"
	deviceruntime "pzemgateway/pkg/device/runtime"
	"pzemgateway/pkg/gateway"
	"pzemgateway/pkg/generic"
	"pzemgateway/pkg/modbus"
	"pzemgateway/pkg/pzem"
	pzemruntime "pzemgateway/pkg/pzem/runtime"
	"pzemgateway/pkg/runtime"
	"pzemgateway/pkg/runtime/constant"
	"pzemgateway/pkg/transport"
	v1 "pzemgateway/pkg/v1"
)

type Option func(*Manager)

// Manager maps meter resources onto a live pool: every created device
// becomes a pooled meter on the serial bus its resource names, every parsed
// metrics reply is republished over MQTT.
type Manager struct {
	gatewayMeta   *gateway.GatewayMeta
	mqttClient    mqtt.Client
	mu            *sync.Mutex
	deviceManager map[string]DeviceManager
	devices       *sync.Map
	store         *generic.Store
	pool          *pzem.Pool

	portByBus map[string]uint8
	stopCh    <-chan struct{}
	closers   []runtime.LabeledCloser
}

func NewManager(store *generic.Store, mqttClient mqtt.Client, gatewayMeta *gateway.GatewayMeta, pool *pzem.Pool, stop <-chan struct{}, opts ...Option) *Manager {
	m := &Manager{
		gatewayMeta:   gatewayMeta,
		mqttClient:    mqttClient,
		mu:            &sync.Mutex{},
		devices:       &sync.Map{},
		deviceManager: DeviceManagers,
		store:         store,
		pool:          pool,
		portByBus:     make(map[string]uint8),
		stopCh:        stop,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func WithCloser(label string, closer func(context.Context) error) Option {
	return func(m *Manager) {
		m.closers = append(m.closers, runtime.LabeledCloser{Label: label, Closer: closer})
	}
}

func (m *Manager) Init() {
	devices, _ := m.store.LoadResource()
	for _, object := range devices {
		obj, _ := runtime.AccessorDevice(object)
		m.devices.Store(obj.GetID(), obj)

		if err := m.readyCollect(obj.(*deviceruntime.MeterDevice)); err != nil {
			klog.V(2).InfoS("Failed to start collecting meter data", "deviceId", obj.GetID(), "err", err)
		}
	}

	m.pool.AttachRxCallback(m.publishReply)
}

func (m *Manager) CreateDevice(object v1.DeviceType) (runtime.Device, error) {
	dm, ok := m.deviceManager[object.GetDeviceType()]
	if !ok {
		return nil, deviceruntime.ErrDeviceType
	}
	device, err := dm.CreateDevice(object)
	if err != nil {
		klog.V(2).InfoS("Failed to create device", "error", err)
		return nil, err
	}

	md := device.(*deviceruntime.MeterDevice)
	if err := m.readyCollect(md); err != nil {
		klog.V(2).InfoS("Failed to start collecting meter data", "deviceId", md.GetID(), "err", err)
		return nil, err
	}

	created, err := m.store.Create(md)
	if err != nil {
		klog.V(2).InfoS("Failed to store device", "error", err)
		m.cancelCollect(md)
		return nil, err
	}
	rd := created.(runtime.Device)
	m.devices.Store(rd.GetID(), rd)

	return rd, nil
}

func (m *Manager) DeleteDevice(id string, version string) (runtime.Device, error) {
	device, err := m.GetDeviceById(id, true)
	if err != nil {
		return nil, err
	}

	if device.GetVersion() != version {
		return nil, apis.ErrMismatch
	}

	d, err := m.deviceManager[device.GetDeviceType()].DeleteDevice(device)
	if err != nil {
		klog.V(2).InfoS("Failed to delete device", "error", err)
		return nil, err
	}

	if _, err := m.store.Delete(d); err != nil {
		klog.V(2).InfoS("Failed to delete device", "deviceId", device.GetID())
	}

	m.cancelCollect(device.(*deviceruntime.MeterDevice))
	m.devices.Delete(device.GetID())

	klog.V(2).InfoS("Deleted device", "deviceId", device.GetID())
	return device, nil
}

func (m *Manager) UpdateDeviceById(id string, version string, newObj v1.DeviceType) (runtime.Device, error) {
	d, err := m.GetDeviceById(id, true)
	if err != nil {
		return nil, err
	}

	if version != d.GetVersion() {
		return nil, apis.ErrMismatch
	}

	copied := d.(*deviceruntime.MeterDevice).DeepCopy()

	if err = m.deviceManager[d.GetDeviceType()].UpdateValidation(newObj, copied); err != nil {
		return nil, err
	}

	device, err := m.deviceManager[d.GetDeviceType()].UpdateDevice(id, newObj, copied)
	if err != nil {
		klog.V(2).InfoS("Failed to update device", "error", err)
		return nil, err
	}

	updated, err := m.store.Update(device)
	if err != nil {
		klog.V(2).InfoS("Failed to update device", "error", err)
		return nil, err
	}
	rd := updated.(runtime.Device)

	// rebind the pooled meter with the fresh settings
	m.cancelCollect(d.(*deviceruntime.MeterDevice))
	if err := m.readyCollect(rd.(*deviceruntime.MeterDevice)); err != nil {
		klog.V(2).InfoS("Failed to restart collecting meter data", "deviceId", id, "err", err)
	}
	m.devices.Store(rd.GetID(), rd)

	return rd, nil
}

func (m *Manager) ListDevices(filter *runtime.DeviceFilter, exploded bool) ([]runtime.Device, error) {
	rds := make([]runtime.Device, 0)
	predicates := runtime.ParseTypeFilter(filter)

	// descend
	byModTime := func(d1, d2 runtime.Device) bool { return d1.GetModTime().Before(d2.GetModTime()) }
	sorter := runtime.ByDevice(byModTime)

	m.devices.Range(func(key, value interface{}) bool {
		isMatch := true
		v := value.(runtime.Device)
		for _, p := range predicates {
			if !p(v) {
				isMatch = false
				break
			}
		}
		if isMatch {
			rds = sorter.Insert(rds, v)
		}
		return true
	})

	if !exploded {
		for i := range rds {
			rds[i] = m.foldDevice(rds[i])
		}
	}

	return rds, nil
}

func (m *Manager) GetDeviceById(id string, exploded bool) (runtime.Device, error) {
	d, isExist := m.devices.Load(id)
	if !isExist {
		return nil, os.ErrNotExist
	}
	device, _ := d.(runtime.Device)
	if !exploded {
		return m.foldDevice(device), nil
	}
	return device, nil
}

// MeterState returns the live state block of a registered device.
func (m *Manager) MeterState(id string) (pzemruntime.State, error) {
	d, err := m.GetDeviceById(id, true)
	if err != nil {
		return nil, err
	}
	state, ok := m.pool.GetState(d.(*deviceruntime.MeterDevice).MeterID)
	if !ok {
		return nil, response.ErrDeviceNotConnect(id)
	}
	return state, nil
}

// DeliverAction executes control verbs against the pooled meter.
func (m *Manager) DeliverAction(id string, actions []*v1.Action) error {
	device, err := m.GetDeviceById(id, true)
	if err != nil {
		klog.V(2).InfoS("Failed to find device", "deviceId", id)
		return response.NewMultiError(response.ErrDeviceNotFound(id))
	}
	md := device.(*deviceruntime.MeterDevice)

	meter, ok := m.pool.MeterByID(md.MeterID)
	if !ok {
		return response.NewMultiError(response.ErrDeviceNotConnect(id))
	}

	errs := &response.MultiError{}
	for _, action := range actions {
		if err := deliverMeterAction(meter, action); err != nil {
			errs.Add(err)
		}
	}
	if errs.Len() > 0 {
		return errs
	}
	return nil
}

func deliverMeterAction(meter *pzem.Meter, action *v1.Action) error {
	switch action.Name {
	case v1.ActionPoll:
		meter.Poll()
	case v1.ActionResetEnergy:
		meter.ResetEnergyCounter()
	case v1.ActionSetAlarmThreshold:
		watts, ok := actionUint16(action.Value)
		if !ok || !meter.SetAlarmThreshold(watts) {
			return response.ErrDeviceOperatorUnSupported(action.Name)
		}
	case v1.ActionSetAlarmHigh:
		value, ok := actionUint16(action.Value)
		if !ok || !meter.SetAlarmHighThreshold(value) {
			return response.ErrDeviceOperatorUnSupported(action.Name)
		}
	case v1.ActionSetAlarmLow:
		value, ok := actionUint16(action.Value)
		if !ok || !meter.SetAlarmLowThreshold(value) {
			return response.ErrDeviceOperatorUnSupported(action.Name)
		}
	case v1.ActionSetShunt:
		name, ok := action.Value.(string)
		if !ok {
			return response.ErrDeviceOperatorUnSupported(action.Name)
		}
		shunt, known := pzemruntime.StringToShunt[name]
		if !known || !meter.SetShunt(shunt) {
			return response.ErrDeviceOperatorUnSupported(action.Name)
		}
	case v1.ActionAutopoll:
		enable, ok := action.Value.(bool)
		if !ok {
			return response.ErrDeviceOperatorUnSupported(action.Name)
		}
		meter.Autopoll(enable)
	default:
		return response.ErrLegalActionNotFound
	}
	return nil
}

func actionUint16(value interface{}) (uint16, bool) {
	// JSON numbers arrive as float64
	v, ok := value.(float64)
	if !ok || v < 0 || v > 0xFFFF {
		return 0, false
	}
	return uint16(v), true
}

// readyCollect binds the resource to the pool: the carrying bus becomes a
// port, the resource becomes a pooled meter.
func (m *Manager) readyCollect(md *deviceruntime.MeterDevice) error {
	model, known := pzemruntime.StringToModel[md.GetModel()]
	if !known || model == pzemruntime.ModelNone {
		return pzemruntime.ErrUnsupportedModel
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	portID, err := m.ensurePort(md.Bus, model)
	if err != nil {
		md.SetCollectStatus(runtime.CollectStatusToString[runtime.Unconnected])
		return constant.ErrConnectDevice
	}

	meterID := md.MeterID
	if meterID == 0 {
		meterID = m.nextMeterID()
		if meterID == 0 {
			return constant.ErrMeterExists
		}
	}

	if err := m.pool.AddMeter(portID, meterID, md.SlaveAddr, model, md.GetName()); err != nil {
		md.SetCollectStatus(runtime.CollectStatusToString[runtime.Error])
		return err
	}
	md.MeterID = meterID
	md.PortID = portID

	if meter, ok := m.pool.MeterByID(meterID); ok {
		if md.PollIntervalMillis > 0 && !meter.SetPollrate(time.Duration(md.PollIntervalMillis)*time.Millisecond) {
			klog.V(2).InfoS("Poll interval below minimum, keeping default",
				"deviceId", md.GetID(), "intervalMillis", md.PollIntervalMillis)
		}
		meter.Autopoll(true)
	}

	md.SetCollectStatus(runtime.CollectStatusToString[runtime.Collecting])
	klog.V(2).InfoS("Succeed to collect meter data", "deviceId", md.GetID(), "meterId", meterID, "portId", portID)
	return nil
}

func (m *Manager) cancelCollect(md *deviceruntime.MeterDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md.SetCollectStatus(runtime.CollectStatusToString[runtime.Stopped])
	if md.MeterID != 0 {
		m.pool.RemoveMeter(md.MeterID)
	}
}

// ensurePort opens one pool port per serial bus. Meters sharing a bus share
// the port, its line parameters come from the first meter registered there.
func (m *Manager) ensurePort(bus *v1.BusAddress, model pzemruntime.Model) (uint8, error) {
	if bus == nil || len(bus.Device) == 0 {
		return 0, constant.ErrConnectDevice
	}
	if id, exist := m.portByBus[bus.Device]; exist {
		return id, nil
	}

	var id uint8
	for candidate := uint8(1); candidate != 0; candidate++ {
		if !m.pool.ExistPort(candidate) {
			id = candidate
			break
		}
	}
	if id == 0 {
		return 0, constant.ErrPortExists
	}

	cfg := uartConfig(bus, model)
	if err := m.pool.AddSerialPort(id, cfg, bus.Device); err != nil {
		klog.V(2).InfoS("Failed to open serial bus", "device", bus.Device, "err", err)
		return 0, err
	}

	m.portByBus[bus.Device] = id
	return id, nil
}

// uartConfig builds the serial line profile: the meter family default,
// overridden by whatever the resource pins down explicitly.
func uartConfig(bus *v1.BusAddress, model pzemruntime.Model) transport.UartConfig {
	cfg := transport.NewUartConfig(bus.Device)
	if model == pzemruntime.ModelDC {
		cfg = transport.NewUartConfigDC(bus.Device)
	}

	if opt := bus.Option; opt != nil {
		if opt.BaudRate > 0 {
			cfg.BaudRate = opt.BaudRate
		}
		if opt.DataBits > 0 {
			cfg.DataBits = opt.DataBits
		}
		if len(opt.Parity) > 0 {
			cfg.Parity = constant.StringToParity[opt.Parity]
		}
		if len(opt.StopBits) > 0 {
			cfg.StopBits = constant.StringToStopBits[opt.StopBits]
		}
	}
	return cfg
}

func (m *Manager) nextMeterID() uint8 {
	for id := uint8(1); id != 0; id++ {
		if !m.pool.ExistMeter(id) {
			return id
		}
	}
	return 0
}

// publishReply pushes every dispatched metrics reply to the MQTT broker.
func (m *Manager) publishReply(meterID uint8, frame *modbus.RxFrame) {
	if m.mqttClient == nil || frame.Cmd() != modbus.ReadInputRegister {
		return
	}

	device := m.deviceByMeterID(meterID)
	if device == nil {
		return
	}

	metrics, ok := m.pool.GetMetrics(meterID)
	if !ok {
		return
	}

	topic := fmt.Sprintf("data/%s/v1/%s", m.gatewayMeta.ID, device.GetID())
	publishData := runtime.PublishData{Payload: runtime.Payload{Data: []runtime.TimeSeriesData{{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Values:    metricPoints(metrics),
	}}}}

	marshal, _ := json.Marshal(publishData)
	token := m.mqttClient.Publish(topic, 1, false, marshal)
	if token.WaitTimeout(mqttTimeout) && token.Error() == nil {
		klog.V(5).InfoS("Succeed to publish MQTT", "topic", topic)
	} else {
		klog.V(1).InfoS("Failed to publish MQTT", "topic", topic, "err", token.Error())
	}
}

func metricPoints(metrics pzemruntime.Metrics) []runtime.PointData {
	switch data := metrics.(type) {
	case pzemruntime.ACMetrics:
		return []runtime.PointData{
			{DataPointId: "voltage", Value: data.AsFloat(pzemruntime.Voltage)},
			{DataPointId: "current", Value: data.AsFloat(pzemruntime.Current)},
			{DataPointId: "power", Value: data.AsFloat(pzemruntime.Power)},
			{DataPointId: "energy", Value: data.AsFloat(pzemruntime.Energy)},
			{DataPointId: "frequency", Value: data.AsFloat(pzemruntime.Frequency)},
			{DataPointId: "powerFactor", Value: data.AsFloat(pzemruntime.PowerFactor)},
			{DataPointId: "alarm", Value: data.Alarm == pzemruntime.AlarmPresent},
		}
	case pzemruntime.DCMetrics:
		return []runtime.PointData{
			{DataPointId: "voltage", Value: data.AsFloat(pzemruntime.Voltage)},
			{DataPointId: "current", Value: data.AsFloat(pzemruntime.Current)},
			{DataPointId: "power", Value: data.AsFloat(pzemruntime.Power)},
			{DataPointId: "energy", Value: data.AsFloat(pzemruntime.Energy)},
			{DataPointId: "alarmHigh", Value: data.AlarmHigh == pzemruntime.AlarmPresent},
			{DataPointId: "alarmLow", Value: data.AlarmLow == pzemruntime.AlarmPresent},
		}
	default:
		return nil
	}
}

func (m *Manager) deviceByMeterID(meterID uint8) runtime.Device {
	var found runtime.Device
	m.devices.Range(func(key, value interface{}) bool {
		if md, ok := value.(*deviceruntime.MeterDevice); ok && md.MeterID == meterID {
			found = md
			return false
		}
		return true
	})
	return found
}

func (m *Manager) Shutdown(ctx context.Context) error {
	m.pool.Close()

	if m.mqttClient != nil {
		m.mqttClient.Disconnect(2000)
	}
	var errs []string
	for i := len(m.closers); i > 0; i-- {
		lc := m.closers[i-1]
		if err := lc.Closer(ctx); err != nil {
			klog.V(2).InfoS("Failed to stopped Dependencies service", "service", lc.Label)
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to shutdown server: [%s]", strings.Join(errs, ","))
	}
	return nil
}

func (m *Manager) foldDevice(device runtime.Device) runtime.Device {
	return &runtime.DeviceMeta{
		ObjectMeta: runtime.ObjectMeta{
			Name:    device.GetName(),
			ID:      device.GetID(),
			Version: device.GetVersion(),
			ModTime: device.GetModTime(),
		},
		DeviceType:    device.GetDeviceType(),
		Model:         device.GetModel(),
		CollectStatus: device.GetCollectStatus(),
	}
}
