// Package errhandler records, classifies and where possible recovers from
// errors raised by devcrew operations.
//
// Every handled error is assigned a severity and category (see
// internal/errors), appended to a JSON-lines log and published on the event
// bus. Before recording, the handler tries a recovery for the error's
// category: a callback registered with RegisterRecovery, or one of the
// built-ins that recreate a missing file or retry a request that failed
// with a gateway status (502, 503, 504). Identical errors repeated within
// the dedup window are recorded once.
package errhandler
