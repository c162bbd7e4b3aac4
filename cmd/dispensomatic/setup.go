package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/melbec/dispensomatic/pkg/dispense"
	"github.com/melbec/dispensomatic/pkg/ot2"
	"github.com/melbec/dispensomatic/pkg/protocol"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	SkipConnect bool `long:"skip-connect" description:"Save parameters without contacting the robot"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Dispense O'Matic Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := dispense.LoadConfig()
	if err != nil {
		cfg = dispense.DefaultConfig()
	}

	// Step 1: where is the robot, where are the protocols
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Robot address").
				Description("IP or host[:port] of the OT-2").
				Value(&cfg.RobotAddr).
				Validate(notEmpty),
			huh.NewInput().
				Title("Protocol directory").
				Description("Directory holding the dispense protocol files").
				Value(&cfg.ProtocolDir).
				Validate(notEmpty),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	reportProtocolFiles(cfg.ProtocolDir)

	// Step 2: wake the robot up and check it answers
	if !c.SkipConnect {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Connecting to Robot ━━━"))
		fmt.Println()

		client := ot2.New(cfg.RobotAddr)
		err := client.Connect(context.Background(), func(msg string) {
			fmt.Println(dimStyle.Render("  " + msg))
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
			os.Exit(1)
		}

		health, err := client.Health(context.Background())
		if err == nil && health.Name != "" {
			fmt.Println(successStyle.Render(fmt.Sprintf("Connected to %s", health.Name)))
		} else {
			fmt.Println(successStyle.Render("Robot connected and ready"))
		}
	}

	// Step 3: dispensing parameters
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Dispensing Parameters ━━━"))
	fmt.Println()
	selectParams(cfg)

	// Step 4: deck check, same prompt the app showed before a run
	placed := false
	deckForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Ensure racks are correctly placed in the robot deck.").
				Affirmative("Racks are placed").
				Negative("Cancel").
				Value(&placed),
		),
	)
	if err := deckForm.Run(); err != nil || !placed {
		fmt.Println("Setup cancelled.")
		os.Exit(0)
	}

	// Step 5: confirm and save
	fmt.Println()
	fmt.Println("Please confirm your selection:")
	fmt.Println()
	fmt.Printf("  Robot:     %s\n", cfg.RobotAddr)
	fmt.Printf("  Protocols: %s\n", cfg.ProtocolDir)
	fmt.Printf("  Volume:    %s\n", cfg.Volume)
	fmt.Printf("  Racks:     %d\n", cfg.Racks)
	fmt.Println()

	save := true
	confirmForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Value(&save),
		),
	)
	if err := confirmForm.Run(); err != nil || !save {
		fmt.Println("Setup cancelled.")
		os.Exit(0)
	}

	if err := cfg.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", dispense.DefaultConfigFile)
	fmt.Println()
	fmt.Println("Start a dispensing run with: " + headerStyle.Render("dispensomatic run"))

	return nil
}

func selectParams(cfg *dispense.Config) {
	volumeOptions := make([]huh.Option[protocol.Volume], 0, len(protocol.Volumes()))
	for _, v := range protocol.Volumes() {
		volumeOptions = append(volumeOptions, huh.NewOption(v.String(), v))
	}

	rackOptions := make([]huh.Option[int], 0, protocol.MaxRacks)
	for r := protocol.MinRacks; r <= protocol.MaxRacks; r++ {
		label := fmt.Sprintf("%d Racks", r)
		if r == 1 {
			label = "1 Rack"
		}
		rackOptions = append(rackOptions, huh.NewOption(label, r))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[protocol.Volume]().
				Title("Select Dispense Volume").
				Options(volumeOptions...).
				Value(&cfg.Volume),
			huh.NewSelect[int]().
				Title("Number of Racks").
				Options(rackOptions...).
				Value(&cfg.Racks),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

// reportProtocolFiles tells the operator which authored protocol files
// the directory holds, so a missing combination surfaces during setup
// rather than at run time.
func reportProtocolFiles(dir string) {
	missing := protocol.NewCatalog(dir).Missing()
	total := len(protocol.Combos())

	fmt.Println()
	if len(missing) == 0 {
		fmt.Println(successStyle.Render(fmt.Sprintf("All %d protocol files present", total)))
		return
	}
	fmt.Printf("%d of %d protocol files present\n", total-len(missing), total)
	for _, name := range missing {
		fmt.Println(dimStyle.Render("  missing: " + name))
	}
}

func notEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}
