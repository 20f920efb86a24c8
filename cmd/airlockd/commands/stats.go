package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/marscolony/airlock-go/pkg/log"
)

// Stats holds aggregate statistics about a trace file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Subsystems        map[string]*SubsystemStats
	Transitions       map[string]int
	Emergencies       int
	Errors            int
	Runs              map[string]struct{}
	Truncated         bool
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SubsystemStats holds statistics for a single subsystem.
type SubsystemStats struct {
	Events   int
	Frames   int
	Requests int
	Rejected int
}

// RunStats analyzes the trace file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Subsystems:        make(map[string]*SubsystemStats),
		Transitions:       make(map[string]int),
		Runs:              make(map[string]struct{}),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, log.ErrTruncated) {
			// Summarize what survived a crash.
			stats.Truncated = true
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++
	if event.RunID != "" {
		s.Runs[event.RunID] = struct{}{}
	}

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.Subsystem != "" {
		ss, ok := s.Subsystems[event.Subsystem]
		if !ok {
			ss = &SubsystemStats{}
			s.Subsystems[event.Subsystem] = ss
		}
		ss.Events++
		if event.Frame != nil {
			ss.Frames++
		}
		if event.Request != nil {
			ss.Requests++
			if event.Request.Rejected != "" {
				ss.Rejected++
			}
		}
	}

	switch {
	case event.Transition != nil:
		s.Transitions[event.Transition.Machine+"/"+event.Transition.Name]++
	case event.Emergency != nil && event.Emergency.Latch == log.LatchRaised:
		s.Emergencies++
	case event.Error != nil:
		s.Errors++
	}
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Airlock Trace Statistics ===")
	fmt.Fprintln(w)
	if stats.Truncated {
		fmt.Fprintln(w, "Warning: trace ends mid-event; the last event was lost")
		fmt.Fprintln(w)
	}

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Millisecond))
		fmt.Fprintf(w, "Runs:       %d\n", len(stats.Runs))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerLink, log.LayerSubsystem, log.LayerControl} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryFrame, log.CategoryTransition, log.CategoryEmergency, log.CategoryRequest, log.CategoryError} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Subsystems: %d\n", len(stats.Subsystems))
	for _, name := range sortedKeys(stats.Subsystems) {
		ss := stats.Subsystems[name]
		fmt.Fprintf(w, "  [%s] %d events, %d frames, %d requests (%d rejected)\n",
			name, ss.Events, ss.Frames, ss.Requests, ss.Rejected)
	}

	if len(stats.Transitions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Transitions:")
		for _, name := range sortedKeys(stats.Transitions) {
			fmt.Fprintf(w, "  %-36s %d\n", name, stats.Transitions[name])
		}
	}

	if stats.Emergencies > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Emergencies: %d\n", stats.Emergencies)
	}
	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
