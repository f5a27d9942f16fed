// Package control dispatches device commands.
//
// Every command leaves exactly one Action row. The row is written pending
// before anything is attempted and resolved to success or failed once the
// outcome is known, so the stored status always agrees with the Result
// returned to the caller.
//
// With a bus publisher configured the command is published to the device's
// control topic. Without one, recognised actions (on, off, toggle, set) are
// applied to the device's local state instead.
package control
