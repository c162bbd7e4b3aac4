package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/melbec/dispensomatic/pkg/ot2"
)

type RunsCommand struct {
	Address string `long:"address" description:"Robot address (overrides config)"`
}

func (c *RunsCommand) Execute(args []string) error {
	client := ot2.New(robotAddr(c.Address))

	runs, err := client.ListRuns(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing runs: %v\n", err)
		os.Exit(1)
	}

	if len(runs) == 0 {
		fmt.Println("No runs on the robot.")
		return nil
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	badStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
	activeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)

	rows := make([][]string, 0, len(runs))
	statuses := make([]ot2.RunStatus, 0, len(runs))
	for _, run := range runs {
		current := ""
		if run.Current {
			current = "yes"
		}
		rows = append(rows, []string{
			run.ID,
			string(run.Status),
			run.CreatedAt.Format("2006-01-02 15:04:05"),
			current,
		})
		statuses = append(statuses, run.Status)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Run", "Status", "Created", "Current").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 1 && row >= 0 && row < len(statuses) {
				switch statuses[row] {
				case ot2.StatusSucceeded:
					return okStyle
				case ot2.StatusFailed, ot2.StatusStopped:
					return badStyle
				case ot2.StatusRunning, ot2.StatusPaused:
					return activeStyle
				}
			}
			return cellStyle
		})

	fmt.Println(t.Render())
	return nil
}
