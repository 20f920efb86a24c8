package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/marscolony/airlock-go/pkg/protocol"
	"github.com/marscolony/airlock-go/pkg/transport"
)

// Serve accepts actuator connections on ln and drives the named actuator
// from each of them until ctx is done. It always closes ln.
func (p *Plant) Serve(ctx context.Context, ln net.Listener, name string) error {
	if !validActuator(name) {
		ln.Close()
		return fmt.Errorf("%w: no simulated actuator %q", transport.ErrBadEndpoint, name)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	p.logger.Info("serving simulated actuator", "actuator", name, "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			closeOnDone := context.AfterFunc(ctx, func() { conn.Close() })
			defer closeOnDone()
			if err := p.ServeConn(conn, name); err != nil && ctx.Err() == nil {
				p.logger.Warn("actuator connection ended", "actuator", name, "error", err)
			}
		}()
	}
}

// ServeConn reads frames from conn until it closes, applying each to the
// named actuator. Every frame is answered with an ack, and every accepted
// apply is followed by a status report of the actuator's current value.
// A frame with a bad checksum or payload is answered with AckFraming; an
// unknown action ends the connection because the stream cannot be resynced.
func (p *Plant) ServeConn(conn net.Conn, name string) error {
	defer conn.Close()

	fr := protocol.NewFrameReader(conn)
	for {
		msg, err := fr.ReadFrame()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, protocol.ErrUnknownAction), errors.Is(err, protocol.ErrTruncated):
			return err
		case errors.Is(err, protocol.ErrFraming):
			if err := reply(conn, protocol.Ack(0, protocol.AckFraming)); err != nil {
				return err
			}
			continue
		case err != nil:
			return err
		}

		replies := p.handle(name, msg)
		for _, r := range replies {
			if err := reply(conn, r); err != nil {
				return err
			}
		}
	}
}

func (p *Plant) handle(name string, msg protocol.Message) []protocol.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := p.failNext[name]; n > 0 {
		p.failNext[name] = n - 1
		return []protocol.Message{protocol.Ack(msg.Procedure, protocol.AckRejected)}
	}
	if msg.Action != protocol.ActionApply && msg.Action != protocol.ActionAbort {
		return []protocol.Message{protocol.Ack(msg.Procedure, protocol.AckRejected)}
	}

	p.apply(name, msg)

	out := []protocol.Message{protocol.Ack(msg.Procedure, protocol.AckOK)}
	if msg.Action == protocol.ActionApply {
		out = append(out, protocol.Status(msg.Procedure, p.valueOf(name)))
	}
	return out
}

// valueOf must be called with p.mu held.
func (p *Plant) valueOf(name string) float64 {
	switch name {
	case Pressure:
		return p.pressure.value
	case Door:
		return p.door.value
	default:
		return p.lightLevel
	}
}

func reply(w io.Writer, msg protocol.Message) error {
	frame, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

func validActuator(name string) bool {
	switch name {
	case Pressure, Door, Light:
		return true
	}
	return false
}
