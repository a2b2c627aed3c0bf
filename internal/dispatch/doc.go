// Package dispatch builds and runs the single-job dispatcher.
//
// A cluster entrypoint retrieves one job graph, resolves the execution mode
// and builds a Dispatcher from a Services bundle. The dispatcher runs that one
// job to completion and then applies the shutdown policy:
//
//   - NORMAL: request cluster shutdown exactly once, with the application
//     status derived from the job's terminal status.
//   - DETACHED: never request shutdown; keep serving job queries.
//
// All dispatcher state lives on a single rpc.Endpoint goroutine. Runner
// callbacks, heartbeat timeouts and leadership revocation are turned into
// mailbox messages, so a terminal notification is handled exactly once no
// matter how many times or from where it arrives.
//
// Infrastructure faults (lost leadership, heartbeat timeout, resource manager
// failure, runner start failure) always go to the fatal error handler. A job
// that fails is not a fault: it is a terminal outcome like any other.
package dispatch
