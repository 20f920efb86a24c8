// Package commands implements the airlockd trace subcommands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/marscolony/airlock-go/pkg/log"
	"github.com/marscolony/airlock-go/pkg/protocol"
)

// ViewFilter specifies criteria for filtering events in the view command.
type ViewFilter struct {
	Subsystem string
	Layer     *log.Layer
	Direction *log.Direction
	Category  *log.Category
}

func (f ViewFilter) matches(e log.Event) bool {
	if f.Subsystem != "" && e.Subsystem != f.Subsystem {
		return false
	}
	if f.Layer != nil && e.Layer != *f.Layer {
		return false
	}
	if f.Direction != nil && e.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	return true
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [subsystem] cycle DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	source := event.Subsystem
	if source == "" {
		source = "-"
	}

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Transition != nil:
		typeLabel = "Transition"
	case event.Emergency != nil:
		typeLabel = "Emergency"
	case event.Request != nil:
		typeLabel = "Request"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [%s] #%d %-3s %s %s\n", ts, source, event.Cycle, event.Direction, event.Layer, typeLabel)

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Transition != nil:
		formatTransitionDetails(w, event.Transition)
	case event.Emergency != nil:
		fmt.Fprintf(w, "  Latch: %s\n", event.Emergency.Latch)
		if event.Emergency.Cause != "" {
			fmt.Fprintf(w, "  Cause: %s\n", event.Emergency.Cause)
		}
	case event.Request != nil:
		fmt.Fprintf(w, "  Procedure: %d  Target: %g\n", event.Request.Procedure, event.Request.Target)
		if event.Request.Rejected != "" {
			fmt.Fprintf(w, "  Rejected: %s\n", event.Request.Rejected)
		}
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	fmt.Fprintf(w, "  Action: %s  Procedure: %d\n", protocol.Action(frame.Action), frame.Procedure)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s\n", hex.EncodeToString(frame.Data))
	}
}

func formatTransitionDetails(w io.Writer, tr *log.TransitionEvent) {
	fmt.Fprintf(w, "  Machine: %s\n", tr.Machine)
	fmt.Fprintf(w, "  %s --%s--> %s (%s)\n", tr.From, tr.Event, tr.To, tr.Name)
	if len(tr.Effects) > 0 {
		fmt.Fprintf(w, "  Effects: %s\n", strings.Join(tr.Effects, ", "))
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// ParseLayer parses a layer name (case-insensitive).
func ParseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "link":
		return log.LayerLink, nil
	case "subsystem":
		return log.LayerSubsystem, nil
	case "control":
		return log.LayerControl, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be link, subsystem, or control)", s)
	}
}

// ParseDirection parses a direction name (case-insensitive).
func ParseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategory parses a category name (case-insensitive).
func ParseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "frame":
		return log.CategoryFrame, nil
	case "transition":
		return log.CategoryTransition, nil
	case "emergency":
		return log.CategoryEmergency, nil
	case "request":
		return log.CategoryRequest, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be frame, transition, emergency, request, or error)", s)
	}
}

// RunView prints every event in path that matches filter.
func RunView(path string, filter ViewFilter, output io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if filter.matches(event) {
			formatEvent(output, event)
		}
	}
	return nil
}
