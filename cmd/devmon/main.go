package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/rtdev.go/pkg/diag"
	"github.com/robotalks/rtdev.go/pkg/diag/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/rtdev/"
)

func init() {
	if val := os.Getenv("RTDEV_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}
	defer q.Close()

	mqtt.Watch(q, func(ev *diag.Event) {
		log.Printf("%s: %s", ev.Board, ev.String())
	})
	<-(chan struct{})(nil)
}
