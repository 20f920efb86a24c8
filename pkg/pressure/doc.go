// Package pressure implements the chamber pressure state machine.
//
// The machine drives two procedures toward a target reading: Pressurize
// (toward the habitat pressure) and Depressurize (toward near vacuum). Each
// Tick compares the latest sensor reading with the active target; the
// procedure completes once the reading crosses it.
//
//	          StartPressurize              Tick(r >= target)
//	  Idle ───────────────────► Pressurizing ───────────────► Idle
//	   │                          │    ▲
//	   │ StartDepressurize   Pause│    │Resume
//	   ▼                          ▼    │
//	Depressurizing ──Pause──────► Paused
//
// EmergencyAsserted moves every state to Emergency. Only EmergencyCleared
// leaves Emergency, and it always lands in Idle: an interrupted procedure is
// never resumed and must be re-issued.
package pressure
