package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Setup  SetupCommand  `command:"setup" description:"Connect to the robot and pick dispensing parameters"`
	Run    RunCommand    `command:"run" description:"Upload the selected protocol and run it with live monitoring"`
	Status StatusCommand `command:"status" description:"Show robot health and current run"`
	Runs   RunsCommand   `command:"runs" description:"List runs on the robot"`
	Lights LightsCommand `command:"lights" description:"Switch the deck lights on or off"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "Dispense O'Matic - MRD dispensing runs on an Opentrons OT-2"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
