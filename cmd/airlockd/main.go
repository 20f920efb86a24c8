// Command airlockd runs the airlock supervisory controller.
//
// Usage:
//
//	airlockd <command> [flags]
//
// Commands:
//
//	run       Run the control loop against the configured actuators
//	validate  Check a configuration file
//	version   Print version information
//	trace     Inspect CBOR trace files (view, stats, export, filter)
//
// Examples:
//
//	# Run against the simulated plant with the operator console
//	airlockd run --simulate --interactive
//
//	# Run on hardware with diagnostics on :9100 and a trace file
//	airlockd run --config /etc/airlock.yaml --metrics-addr :9100 --trace run.atrace
//
//	# Show what happened
//	airlockd trace stats run.atrace
package main

func main() {
	Execute()
}
