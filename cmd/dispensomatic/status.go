package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/melbec/dispensomatic/pkg/dispense"
	"github.com/melbec/dispensomatic/pkg/ot2"
)

type StatusCommand struct {
	Address string `long:"address" description:"Robot address (overrides config)"`
}

// robotAddr resolves the robot address: flag, then config file, then the
// lab default.
func robotAddr(flagAddr string) string {
	if flagAddr != "" {
		return flagAddr
	}
	if cfg, err := dispense.LoadConfig(); err == nil && cfg.RobotAddr != "" {
		return cfg.RobotAddr
	}
	return ot2.DefaultAddr
}

func (c *StatusCommand) Execute(args []string) error {
	client := ot2.New(robotAddr(c.Address))
	ctx := context.Background()

	health, err := client.Health(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Robot not reachable at %s: %v\n", client.Addr(), err)
		fmt.Fprintln(os.Stderr, "Try waking it with: dispensomatic setup")
		os.Exit(1)
	}

	rows := [][]string{
		{"Address", client.Addr()},
		{"Name", health.Name},
		{"Model", health.RobotModel},
		{"API version", health.APIVersion},
		{"Firmware", health.FirmwareVersion},
	}

	if on, err := client.Lights(ctx); err == nil {
		state := "off"
		if on {
			state = "on"
		}
		rows = append(rows, []string{"Lights", state})
	}

	current := "none"
	if runs, err := client.ListRuns(ctx); err == nil {
		for _, run := range runs {
			if run.Current {
				current = fmt.Sprintf("%s (%s)", run.ID, run.Status)
			}
		}
	}
	rows = append(rows, []string{"Current run", current})

	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	valueStyle := lipgloss.NewStyle().Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return labelStyle
			}
			return valueStyle
		})

	fmt.Println(t.Render())
	return nil
}
