// Package protocol implements the binary frame format spoken with the
// actuator controller.
//
// # Frame Layout
//
//	+--------+-----------+-----------+----------+
//	| action | procedure | payload   | checksum |
//	| 1 byte | 1 byte    | N bytes   | 2 bytes  |
//	+--------+-----------+-----------+----------+
//
// The checksum is the 16-bit wrapping sum of every preceding byte, stored
// little-endian. The payload size is fixed per action:
//
//	0x01 Apply   float32 LE target
//	0x02 Abort   empty
//	0x03 Status  float32 LE reading
//	0x04 Ack     1 byte status code
//
// Frames carry no version byte. A revision extends the action space rather
// than reinterpreting an existing payload. There are no sequence numbers and
// no session handshake, so a lost or duplicated frame is not detected here;
// callers that need delivery guarantees must re-request.
package protocol
