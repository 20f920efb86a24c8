// Package door implements the airlock door state machine.
//
// Opening and Closing loop on Tick until the door reports it reached the
// commanded angle, then settle in Open or Closed. A request to reverse
// direction mid-travel is rejected rather than silently switching; the
// operator must wait for the door to settle or raise an emergency halt.
package door
