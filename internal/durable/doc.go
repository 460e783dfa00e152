// Package durable implements the step-interception dispatcher, execution
// log replay, delayed steps, and external-signal rendezvous that make a
// flow resumable across process restarts.
//
// A flow body calling a plain Go function directly, instead of through
// Dispatcher.Step/StepDelayed/Await, bypasses the log entirely: nothing
// is recorded, and on replay that call runs again from scratch. This is
// intentional, not a gap to close: only calls routed through the
// dispatcher get replay/retry semantics, and a flow author opts a call
// into those semantics by making it go through the dispatcher.
package durable
