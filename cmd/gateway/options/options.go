package options

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"pzemgateway/cmd/gateway/config"
	"pzemgateway/pkg/device"
	"pzemgateway/pkg/gateway"
	"pzemgateway/pkg/generic"
	baseoptions "pzemgateway/pkg/generic/options"
	"pzemgateway/pkg/pzem"
	"pzemgateway/pkg/storage"
	"pzemgateway/pkg/utils/uuidutil"
)

type Options struct {
	Port       string        `json:"port"`
	Wait       time.Duration `json:"graceful-timeout"`
	MqttBroker string        `json:"mqtt-broker"`
	MqttUser   string        `json:"mqtt-user"`
	MqttPass   string        `json:"-"`
	baseoptions.BaseOptions
}

const (
	_defaultPort = "32210"
	_defaultWait = 15 * time.Second

	mqttConnectTimeout = 5 * time.Second
)

func NewDefaultOptions() *Options {
	return &Options{
		Port:        _defaultPort,
		Wait:        _defaultWait,
		BaseOptions: baseoptions.NewDefaultBaseOptions(),
	}
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&o.Port, "port", "P", o.Port, "Port exposed")
	fs.DurationVar(&o.Wait, "graceful-timeout", o.Wait, "The duration for which the server gracefully wait for existing connections to finish - e.g. 15s or 1m")
	fs.StringVar(&o.MqttBroker, "mqtt-broker", o.MqttBroker, "MQTT broker URL for metrics publishing, e.g. tcp://127.0.0.1:1883. Empty disables publishing")
	fs.StringVar(&o.MqttUser, "mqtt-user", o.MqttUser, "MQTT broker username")
	fs.StringVar(&o.MqttPass, "mqtt-pass", o.MqttPass, "MQTT broker password")
}

func (o *Options) Config(stopCh <-chan struct{}) (*config.Config, error) {
	c := &config.Config{}

	gatewayMgr := gateway.NewGatewayManager(stopCh)
	gatewayMgr.Init()
	gatewayMeta, _ := gatewayMgr.GetGatewayMeta()

	var mqttClient mqtt.Client
	if len(o.MqttBroker) > 0 {
		opts := mqtt.NewClientOptions().
			AddBroker(o.MqttBroker).
			SetClientID(fmt.Sprintf("pzemgateway-%s", uuidutil.ShortUUID())).
			SetUsername(o.MqttUser).
			SetPassword(o.MqttPass).
			SetAutoReconnect(true)
		mqttClient = mqtt.NewClient(opts)
		token := mqttClient.Connect()
		if !token.WaitTimeout(mqttConnectTimeout) || token.Error() != nil {
			klog.V(1).InfoS("Failed to connect MQTT broker", "broker", o.MqttBroker, "err", token.Error())
		}
	}

	store, err := generic.NewStore(storage.StoreGroupToString[storage.StoreGroupDevice], storage.Devices, generic.DeviceTypeObjectMap)
	if err != nil {
		return nil, err
	}

	deviceMgr := device.NewManager(store, mqttClient, gatewayMeta, pzem.NewPool(), stopCh)
	deviceMgr.Init()

	c.DeviceMgr = deviceMgr
	c.GatewayMgr = gatewayMgr

	return c, nil
}
