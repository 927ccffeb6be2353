// Package request implements the lifecycle of one logical asynchronous
// operation slot ("upload this entry", "delete this entry").
//
// # Overview
//
// A Request executes a Call, which returns a cancelable Operation. Every
// Execute assigns a fresh operation id; that id is the fencing token. When an
// operation resolves, its result is committed only if its id still equals the
// request's current id. Results of superseded or aborted invocations are
// dropped without touching state, so the most recently issued invocation is
// the only one ever observed, even when the transport cannot cancel.
//
// # States
//
//	Initial --Execute--> Fetching --ok--> Success
//	                        |     --err-> Error
//	                        +--cancel/Abort--> Initial
//
// # Error Handling
//
// Execute returns ErrSuperseded for fenced results and ErrCanceled for aborted
// ones. Cancellation-class failures (see IsCancellation) never reach Err().
//
// # Concurrency
//
// Request is safe for concurrent use. Subscribers are notified after the
// internal lock is released.
package request
