// Package supervisor runs the airlock control cycle.
//
// Each cycle reads one panel snapshot and one sensor reading, feeds the
// watchdog and the emergency arbiter, and then steps the pressure, door and
// light machines in a fixed order:
//
//  1. emergency events (assert, unresolved, clear)
//  2. operator commands, unless the arbiter suppresses them
//  3. convergence ticks from the sensor reading
//  4. the light switch
//
// Each machine is stepped under its subsystem's lock. The effects of a step
// are executed only after the lock is released and the new state is
// committed; command effects become procedure requests on the subsystem,
// which its worker transmits on its own schedule.
//
// The supervisor goroutine is the only writer of machine state, so the
// machines themselves carry no locks.
package supervisor
