package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/melbec/dispensomatic/pkg/dispense"
	"github.com/melbec/dispensomatic/pkg/ot2"
	"github.com/melbec/dispensomatic/pkg/protocol"
)

type RunCommand struct {
	Volume      float64 `long:"volume" description:"Dispense volume in ml (overrides config)"`
	Racks       int     `long:"racks" description:"Number of racks (overrides config)"`
	Address     string  `long:"address" description:"Robot address (overrides config)"`
	ProtocolDir string  `long:"protocol-dir" description:"Protocol directory (overrides config)"`
}

const (
	headerHeight = 2 // title + blank line
	statusHeight = 2 // status row + blank
	footerHeight = 8 // log box + key hints
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pausedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	runStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

const progressSet = "progress"

type monitorModel struct {
	runner   *dispense.Runner
	done     <-chan error
	chart    *streamlinechart.Model
	spin     spinner.Model
	width    int
	height   int
	logs     []string
	status   ot2.RunStatus
	command  string
	percent  float64 // negative until the robot reports progress
	finished bool
	result   error
	quitting bool
	detached bool
}

func (m *monitorModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the runner
type stateMsg dispense.State
type logMsg string
type doneMsg struct{ err error }

func waitForState(r *dispense.Runner) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-r.States())
	}
}

func waitForLog(r *dispense.Runner) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-r.Logs())
	}
}

func waitForDone(done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: <-done}
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *monitorModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - statusHeight - footerHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m *monitorModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialMonitorModel(runner *dispense.Runner, done <-chan error) monitorModel {
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(0, 100),
	)
	chart.SetDataSetStyles(progressSet, runes.ThinLineStyle,
		lipgloss.NewStyle().Foreground(lipgloss.Color("10")))

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return monitorModel{
		runner:  runner,
		done:    done,
		chart:   &chart,
		spin:    spin,
		percent: -1,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		m.spin.Tick,
		waitForState(m.runner),
		waitForLog(m.runner),
		waitForDone(m.done),
	)
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if !m.finished {
				m.detached = true
			}
			return m, tea.Quit
		case "p":
			if !m.finished && !m.runner.Paused() {
				runner := m.runner
				return m, func() tea.Msg { runner.Pause(); return nil }
			}
		case "r":
			if !m.finished && m.runner.Paused() {
				runner := m.runner
				return m, func() tea.Msg { runner.Resume(); return nil }
			}
		case "s":
			if !m.finished {
				m.addLog("Stopping protocol...")
				runner := m.runner
				return m, func() tea.Msg { runner.Stop(); return nil }
			}
		}

	case stateMsg:
		state := dispense.State(msg)
		m.status = state.Status
		m.command = state.Command
		if state.Percent >= 0 {
			m.percent = state.Percent
			m.chart.PushDataSet(progressSet, state.Percent)
			m.chart.DrawAll()
		}
		return m, waitForState(m.runner)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.runner)

	case doneMsg:
		m.finished = true
		m.result = msg.err
		return m, tea.Quit
	}

	return m, nil
}

func (m monitorModel) View() string {
	if m.quitting || m.finished {
		return ""
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Dispense O'Matic"))
	sb.WriteString(fmt.Sprintf(" - %s", m.runner.Params()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Status line
	sb.WriteString(m.statusLine())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4)

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Starting protocol...")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	// Key hints
	sb.WriteString(statusStyle.Render("p pause  r resume  s stop  q detach"))
	sb.WriteString("\n")

	return sb.String()
}

func (m monitorModel) statusLine() string {
	var parts []string

	switch {
	case m.status == "":
		parts = append(parts, m.spin.View()+" Preparing run")
	case m.runner.Paused() || m.status == ot2.StatusPaused:
		parts = append(parts, pausedStyle.Render("⏸ Run paused..."))
	default:
		parts = append(parts, m.spin.View()+" "+runStyle.Render("Status: "+string(m.status)))
	}

	if m.command != "" {
		parts = append(parts, statusStyle.Render(m.command))
	}
	if m.percent >= 0 {
		parts = append(parts, fmt.Sprintf("%.0f%%", m.percent))
	}

	return strings.Join(parts, "  ")
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := dispense.LoadConfig()
	if err != nil {
		if c.Volume == 0 || c.Racks == 0 {
			fmt.Fprintln(os.Stderr, "No configuration found. Run 'dispensomatic setup' first.")
			os.Exit(1)
		}
		cfg = dispense.DefaultConfig()
	}

	if c.Volume != 0 {
		cfg.Volume = protocol.Volume(c.Volume)
	}
	if c.Racks != 0 {
		cfg.Racks = c.Racks
	}
	if c.Address != "" {
		cfg.RobotAddr = c.Address
	}
	if c.ProtocolDir != "" {
		cfg.ProtocolDir = c.ProtocolDir
	}

	params := cfg.Params()
	if err := params.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client := ot2.New(cfg.RobotAddr)
	catalog := protocol.NewCatalog(cfg.ProtocolDir)

	runner, err := dispense.NewRunner(client, catalog, params)
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	fmt.Printf("Dispensing %s on %s\n", params, client.Addr())

	// Start the workflow in the background
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runner.Start(ctx)
	}()

	// Run TUI
	p := tea.NewProgram(initialMonitorModel(runner, done), tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		log.Fatalf("Error running program: %v", err)
	}

	m := finalModel.(monitorModel)
	if m.detached {
		cancel()
		fmt.Println("Monitor detached; the run continues on the robot.")
		if runID := runner.RunID(); runID != "" {
			fmt.Printf("Run %s - check it with: dispensomatic status\n", runID)
		}
		return nil
	}

	switch {
	case m.result == nil:
		fmt.Println(successStyle.Render("🎉 All done! 🎉"))
	case errors.Is(m.result, dispense.ErrStopped):
		fmt.Println("Protocol run has been stopped.")
		fmt.Println("Please wait for the robot to settle if it's still moving.")
	default:
		fmt.Fprintf(os.Stderr, "Run failed: %v\n", m.result)
		os.Exit(1)
	}

	return nil
}
