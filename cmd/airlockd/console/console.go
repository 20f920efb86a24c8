// Package console provides the interactive operator panel for airlockd.
// Each command drives a channel of the software switchboard the supervisor
// reads every cycle.
package console

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/marscolony/airlock-go/pkg/panel"
	"github.com/marscolony/airlock-go/pkg/supervisor"
)

// Reporter returns the latest supervisor view.
type Reporter interface {
	Report() supervisor.Report
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func() supervisor.Report

func (f ReporterFunc) Report() supervisor.Report { return f() }

// Console handles interactive mode for airlockd.
type Console struct {
	board    *panel.Switchboard
	reporter Reporter
	rl       *readline.Instance
	out      io.Writer
}

// New creates a console bound to board.
func New(board *panel.Switchboard, reporter Reporter) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "airlock> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{board: board, reporter: reporter, rl: rl, out: rl.Stdout()}, nil
}

// Stderr returns a writer that coordinates with the prompt. Use it for log
// output while the console is running.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run reads commands until quit, EOF or ctx is done. Quitting calls cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	go func() {
		<-ctx.Done()
		_ = c.rl.Close()
	}()

	c.printHelp()
	for {
		if ctx.Err() != nil {
			return
		}

		line, err := c.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.Execute(line); quit {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Execute runs one command line and reports whether the console should exit.
func (c *Console) Execute(line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd, args := strings.ToLower(parts[0]), parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "press", "p":
		c.cmdPress(args)
	case "set", "s":
		c.cmdSet(args)
	case "toggle", "t":
		c.cmdToggle(args)
	case "emergency", "estop":
		c.cmdEmergency(args)
	case "panel":
		c.cmdPanel()
	case "status", "st":
		c.cmdStatus(args)
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
Airlock Panel Commands:
  Buttons:
    press <ch>          - Press a momentary button for one cycle (p, d, o, c, cf)
    emergency on|off    - Hold or release the emergency button

  Switches:
    set <ch> on|off     - Hold a maintained switch (en, h, l)
    toggle <ch>         - Flip a maintained switch

  Inspection:
    panel               - Show maintained panel levels
    status [json]       - Show machine states, readings and indicators

  General:
    help                - Show this help
    quit                - Exit

  Channels: e(mergency) p(ressurize) d(epressurize) l(ight) o(pen) c(lose)
            en(able) h(old) cf (confirm)`)
}

func (c *Console) channel(args []string, usage string) (panel.Channel, bool) {
	if len(args) < 1 {
		fmt.Fprintf(c.out, "Usage: %s\n", usage)
		return 0, false
	}
	ch, err := panel.ParseChannel(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return 0, false
	}
	return ch, true
}

func (c *Console) cmdPress(args []string) {
	ch, ok := c.channel(args, "press <channel>")
	if !ok {
		return
	}
	c.board.Press(ch)
	fmt.Fprintf(c.out, "%s pressed\n", ch)
}

func (c *Console) cmdSet(args []string) {
	ch, ok := c.channel(args, "set <channel> on|off")
	if !ok {
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: set <channel> on|off")
		return
	}
	level, err := parseLevel(args[1])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	if ch == panel.Emergency {
		// The emergency line is active-low.
		level = !level
	}
	c.board.Set(ch, level)
	fmt.Fprintf(c.out, "%s %s\n", ch, onOff(args[1]))
}

func (c *Console) cmdToggle(args []string) {
	ch, ok := c.channel(args, "toggle <channel>")
	if !ok {
		return
	}
	level := c.board.Toggle(ch)
	if ch == panel.Emergency {
		level = !level
	}
	fmt.Fprintf(c.out, "%s %s\n", ch, onOff(fmt.Sprint(level)))
}

func (c *Console) cmdEmergency(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: emergency on|off")
		return
	}
	c.cmdSet([]string{"e", args[0]})
}

func (c *Console) cmdPanel() {
	s := c.board.Levels()
	for _, ch := range panel.Channels() {
		level := s.Level(ch)
		if ch == panel.Emergency {
			fmt.Fprintf(c.out, "  %-13s %s (line %s)\n", ch, onOff(fmt.Sprint(s.EmergencyAsserted())), highLow(level))
			continue
		}
		fmt.Fprintf(c.out, "  %-13s %s\n", ch, highLow(level))
	}
}

func (c *Console) cmdStatus(args []string) {
	if c.reporter == nil {
		fmt.Fprintln(c.out, "Supervisor not running")
		return
	}
	r := c.reporter.Report()

	if len(args) > 0 && args[0] == "json" {
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			fmt.Fprintf(c.out, "Error: %v\n", err)
			return
		}
		fmt.Fprintln(c.out, string(data))
		return
	}

	fmt.Fprintf(c.out, "Cycle:     %d\n", r.Cycle)
	fmt.Fprintf(c.out, "Pressure:  %-15s %.1f hPa\n", r.Pressure, r.Reading.Pressure)
	fmt.Fprintf(c.out, "Door:      %-15s %.1f deg\n", r.Door, r.Reading.DoorAngle)
	fmt.Fprintf(c.out, "Light:     %s\n", r.Light)
	if r.WatchdogRemainingMS > 0 {
		fmt.Fprintf(c.out, "Watchdog:  %s (trips in %dms)\n", r.Watchdog, r.WatchdogRemainingMS)
	} else {
		fmt.Fprintf(c.out, "Watchdog:  %s\n", r.Watchdog)
	}
	if r.Emergency {
		fmt.Fprintf(c.out, "EMERGENCY: %s\n", r.Cause)
	}
	o := r.Outputs
	fmt.Fprintf(c.out, "Indicators: pressurized=%t in_progress=%t depressurized=%t enable=%t confirm=%t emergency=%t hold=%t\n",
		o.Pressurized, o.InProgress, o.Depressurized, o.EnableActive, o.Confirm, o.Emergency, o.Hold)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(c.out, "Skipped:   %s\n", strings.Join(r.Skipped, ", "))
	}
}

func parseLevel(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "1", "true", "high":
		return true, nil
	case "off", "0", "false", "low":
		return false, nil
	}
	return false, fmt.Errorf("invalid level %q (use on or off)", s)
}

func onOff(s string) string {
	if on, _ := parseLevel(s); on {
		return "on"
	}
	return "off"
}

func highLow(level bool) string {
	if level {
		return "high"
	}
	return "low"
}

func completer() *readline.PrefixCompleter {
	channels := make([]readline.PrefixCompleterInterface, 0, len(panel.Channels()))
	for _, ch := range panel.Channels() {
		channels = append(channels, readline.PcItem(ch.String()))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("press", channels...),
		readline.PcItem("set", channels...),
		readline.PcItem("toggle", channels...),
		readline.PcItem("emergency", readline.PcItem("on"), readline.PcItem("off")),
		readline.PcItem("panel"),
		readline.PcItem("status", readline.PcItem("json")),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}
