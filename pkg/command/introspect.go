package command

import (
	"bytes"
	"fmt"
)

// Introspect writes every setting with its current value, unmasked, and
// the hints for the confirmation commands.
func (p *Protocol) Introspect() {
	if p.Output == nil {
		return
	}
	rec := p.Store.Record()
	debug := "false"
	if rec.Debug {
		debug = "true"
	}

	var buf bytes.Buffer
	line := func(name, desc string, value interface{}) {
		fmt.Fprintf(&buf, "%s=<%s> (%v)\n", name, desc, value)
	}
	line("ssid", "wifi ssid", rec.NetworkID)
	line("wifipass", "wifi password", rec.NetworkSecret)
	line("broker", "address of MQTT broker", rec.BrokerAddress)
	line("brokerPort", "port number MQTT broker", rec.BrokerPort)
	line("userName", "user ID for MQTT broker", rec.BrokerUsername)
	line("userPass", "user password for MQTT broker", rec.BrokerUserSecret)
	line("topic", "MQTT topic for which to subscribe", rec.DataTopic)
	line("lwtMessage", "status message to send when power is removed", rec.LastWillMessage)
	line("mqttCommandTopic", "mqtt message for commands to this device", rec.CommandTopic)
	line("debug", "print debug messages to serial port", debug)
	line("pitch", "frequency in Hz for tone pitch", rec.TonePitchHz)
	line("dotLength", "number of milliseconds for dot", rec.DotDurationMs)
	fmt.Fprintf(&buf, "MQTT client ID=<automatically generated client ID> (%s) **Use \"%s=%s\" to regenerate\n",
		rec.ClientID, KeyResetClientID, Confirmation)
	fmt.Fprintf(&buf, "\n*** Use \"%s=%s\" to reset all settings ***\n", KeyFactoryDefaults, Confirmation)
	if p.MachineID != "" {
		fmt.Fprintf(&buf, "\nMachine ID=%s", p.MachineID)
	}
	var addr string
	if p.NetworkAddress != nil {
		addr = p.NetworkAddress()
	}
	fmt.Fprintf(&buf, "\nIP Address=%s\n", addr)
	p.Output.Write(buf.Bytes())
}
