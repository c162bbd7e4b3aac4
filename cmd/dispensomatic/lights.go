package main

import (
	"context"
	"fmt"
	"os"

	"github.com/melbec/dispensomatic/pkg/ot2"
)

type LightsCommand struct {
	Address string `long:"address" description:"Robot address (overrides config)"`
	Args    struct {
		State string `positional-arg-name:"on|off" required:"yes"`
	} `positional-args:"yes"`
}

func (c *LightsCommand) Execute(args []string) error {
	var on bool
	switch c.Args.State {
	case "on":
		on = true
	case "off":
		on = false
	default:
		fmt.Fprintf(os.Stderr, "Unknown lights state %q (want on or off)\n", c.Args.State)
		os.Exit(1)
	}

	client := ot2.New(robotAddr(c.Address))
	if err := client.SetLights(context.Background(), on); err != nil {
		fmt.Fprintf(os.Stderr, "Lights %s failed: %v\n", c.Args.State, err)
		os.Exit(1)
	}

	fmt.Printf("Lights now %s\n", c.Args.State)
	return nil
}
