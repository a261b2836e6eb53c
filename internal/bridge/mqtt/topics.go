// internal/bridge/mqtt/topics.go
package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout under the configured prefix:
//
//	<prefix>/bridge/status          online | offline (retained, LWT)
//	<prefix>/<device>/state         snapshot JSON (retained)
//	<prefix>/<device>/availability  online | offline (retained)
//	<prefix>/<device>/set/<field>   commands
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

type Topics struct {
	Prefix string
}

func (t Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/bridge/status", t.Prefix)
}

func (t Topics) State(device string) string {
	return fmt.Sprintf("%s/%s/state", t.Prefix, device)
}

func (t Topics) Availability(device string) string {
	return fmt.Sprintf("%s/%s/availability", t.Prefix, device)
}

func (t Topics) Command(device, field string) string {
	return fmt.Sprintf("%s/%s/set/%s", t.Prefix, device, field)
}

// CommandFilter subscribes to every command of device.
func (t Topics) CommandFilter(device string) string {
	return t.Command(device, "+")
}

// ParseCommand splits a command topic into device and field.
func (t Topics) ParseCommand(topic string) (device, field string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/")
	if !found {
		return "", "", false
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" || parts[0] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}
