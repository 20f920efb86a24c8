// Package subsystem runs one actuator channel per Subsystem and keeps the
// live ones in a Pool.
//
// # Locking
//
// Each Subsystem has one mutex guarding its pending request and its recorded
// state name. The supervisor holds it only to install a request or to step
// the domain state machine (Update); the worker holds it only to copy and
// clear the pending request. Encoding and transmitting happen outside the
// lock, so a slow link never stalls the control loop.
//
// # Requests
//
// RequestNewState validates a request against the subsystem's Limits and
// installs it, replacing any request the worker has not taken yet. There is
// no queue: the actuator only ever needs the latest intent.
//
// # Shutdown
//
// Stop is cooperative. The worker checks its stop channel at the top of each
// iteration and exits without finishing an in-flight transmit, so a frame
// may be cut short on the wire. The actuator discards it on checksum.
package subsystem
