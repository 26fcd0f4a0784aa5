package actuator

import (
	"encoding/json"
	"fmt"

	"github.com/konkon3660/graduationP/internal/mqttbus"
)

// Command is the JSON message an MQTTFacade publishes for every call.
type Command struct {
	Cmd    string        `json:"cmd"`
	On     *bool         `json:"on,omitempty"`
	X      *int          `json:"x,omitempty"`
	Y      *int          `json:"y,omitempty"`
	Dir    Direction     `json:"direction,omitempty"`
	Left   *MotorCommand `json:"left,omitempty"`
	Right  *MotorCommand `json:"right,omitempty"`
	Sound  string        `json:"sound,omitempty"`
	Volume float64       `json:"volume,omitempty"`
}

// MQTTFacade forwards actuator calls to a hardware daemon subscribed to
// Topic. Arguments are validated locally so range errors surface to the
// caller exactly as with a directly attached driver.
type MQTTFacade struct {
	pub   mqttbus.Publisher
	topic string
	table DriveTable
}

var _ Hardware = (*MQTTFacade)(nil)

// NewMQTTFacade returns a facade publishing to topic.
func NewMQTTFacade(pub mqttbus.Publisher, topic string, table DriveTable) *MQTTFacade {
	return &MQTTFacade{pub: pub, topic: topic, table: table}
}

func (m *MQTTFacade) send(c Command) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("actuator: encode %s: %w", c.Cmd, err)
	}
	if err := m.pub.Publish(m.topic, payload); err != nil {
		return fmt.Errorf("actuator: %s: %w", c.Cmd, err)
	}
	return nil
}

func (m *MQTTFacade) SetLaser(on bool) error {
	return m.send(Command{Cmd: "laser", On: &on})
}

func (m *MQTTFacade) MovePointer(x, y int) error {
	if err := ValidatePosition(x, y); err != nil {
		return err
	}
	return m.send(Command{Cmd: "pointer", X: &x, Y: &y})
}

func (m *MQTTFacade) CenterPointer() error {
	return m.MovePointer(PointerCenter, PointerCenter)
}

func (m *MQTTFacade) Drive(dir Direction, speed int) error {
	left, right, err := m.table.Resolve(dir, speed)
	if err != nil {
		return err
	}
	return m.send(Command{Cmd: "drive", Dir: dir, Left: &left, Right: &right})
}

func (m *MQTTFacade) Fire() error {
	return m.send(Command{Cmd: "fire"})
}

func (m *MQTTFacade) PlaySound(name string, volume float64) error {
	return m.send(Command{Cmd: "sound", Sound: name, Volume: volume})
}

func (m *MQTTFacade) Feed() error {
	return m.send(Command{Cmd: "feed"})
}
