package sink

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-ringwave/internal/log"
	"github.com/teslashibe/go-ringwave/pkg/ring"
)

const mqttConnectTimeout = 5 * time.Second

// MQTT publishes control events and state changes as JSON. Topics are
// <prefix>/events and <prefix>/state. Publishing is fire-and-forget at QoS 0;
// a dropped broker connection never stalls the gesture core.
type MQTT struct {
	client mqtt.Client
	prefix string
}

// eventPayload is the wire form of one published event.
type eventPayload struct {
	Event string `json:"event"`
	TS    int64  `json:"ts"` // Unix milliseconds
}

// statePayload is the wire form of one published state change.
type statePayload struct {
	State string `json:"state"`
	TS    int64  `json:"ts"`
}

// NewMQTT connects to the broker and returns a publishing sink.
func NewMQTT(broker, clientID, prefix string) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	log.Info("mqtt: connected", "broker", broker, "prefix", prefix)

	return &MQTT{client: client, prefix: prefix}, nil
}

// OnStateChange implements ring.StateSink.
func (m *MQTT) OnStateChange(s ring.State) {
	m.publish(m.prefix+"/state", statePayload{State: s.String(), TS: time.Now().UnixMilli()})
}

// OnControlEvent implements ring.ControlSink.
func (m *MQTT) OnControlEvent(ev ring.ControlEvent) {
	m.publish(m.prefix+"/events", eventPayload{Event: ev.String(), TS: time.Now().UnixMilli()})
}

func (m *MQTT) publish(topic string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warn("mqtt: marshal failed", "topic", topic, "err", err)
		return
	}
	m.client.Publish(topic, 0, false, data)
}

// Close disconnects from the broker.
func (m *MQTT) Close() {
	m.client.Disconnect(250)
}
