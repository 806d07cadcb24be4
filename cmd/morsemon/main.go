package main

import (
	"flag"
	"log"
	"os"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/robotalks/morse.go/pkg/bus/mqtt"
	"github.com/robotalks/morse.go/pkg/config"
	"github.com/robotalks/morse.go/pkg/morse"
)

var (
	mqttURL = "mqtt://localhost:1883"
	topic   = config.DefaultDataTopic
)

func init() {
	if val := os.Getenv("MORSE_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&topic, "topic", topic, "Data topic of the device.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	opts, err := mqtt.ClientOptionsFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if len(opts.ClientID) == 0 {
		opts.SetClientID(config.NewClientID() + "mon")
	}
	filters := map[string]byte{topic: 0, topic + "/#": 0}
	opts.SetOnConnectHandler(func(c paho.Client) {
		c.SubscribeMultiple(filters, func(c paho.Client, msg paho.Message) {
			if msg.Topic() == topic {
				log.Printf("%s: %q %s", msg.Topic(), msg.Payload(), morse.Notation(string(msg.Payload())))
				return
			}
			log.Printf("%s: %s", msg.Topic(), string(msg.Payload()))
		})
	})
	client := paho.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	<-(chan struct{})(nil)
}
