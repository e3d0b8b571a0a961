package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/robotalks/rtdev.go/pkg/board"
	"github.com/robotalks/rtdev.go/pkg/demo"
	"github.com/robotalks/rtdev.go/pkg/rtos"
)

func init() {
	board.SetupFlags()
	demo.SetupFlags()
}

func main() {
	flag.Parse()

	b := board.NewConfig().MustNewBoard()
	defer b.Close()
	if _, err := demo.NewConfig().New(b); err != nil {
		log.Fatalln(err)
	}

	err := rtos.NewRunner().
		HandleSignals().
		Go(rtos.NamedRun(b.Name, rtos.RunFunc(b.Run))).
		Wait()
	if err != nil {
		log.Fatalln(err)
	}
}
