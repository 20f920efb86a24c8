// Package failsafe implements the input watchdog.
//
// The controller cannot distinguish a dead panel or sensor from a quiet one,
// so a read path that keeps failing is treated like a pressed emergency
// button.
//
// # Watchdog Behavior
//
//   - Starts counting on the first failed cycle
//   - Any healthy cycle before expiry resets it
//   - Trips once reads have failed continuously for the configured duration
//     (default 500ms)
//   - After a trip, reads must stay healthy for the grace period (default
//     none) before the watchdog returns to normal
//
// The watchdog is driven by the control loop's clock: every cycle reports
// whether its reads succeeded through Observe. It never fires on its own, so
// a stalled loop cannot trip or clear it behind the supervisor's back.
package failsafe
