// Package transport provides the point-to-point links that carry encoded
// frames to the actuator controllers.
//
// A Link transmits whole frames. Endpoints are URL-like strings whose scheme
// selects the opener:
//
//	serial:/dev/ttyUSB0?baud=115200
//	tcp:10.0.0.12:7000
//
// Additional schemes (for example the plant simulator) are registered on a
// Dialer. When a link fails, callers close it and reopen it after a delay
// taken from Backoff.
package transport
