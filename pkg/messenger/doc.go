// Package messenger delivers typed messages between a page and its
// companion extension.
//
// Two delivery styles are provided:
//
//   - Port: one-way, fire-and-forget, at-most-once per call. Messages from
//     one sender are delivered in send order. Window is the in-process
//     page message bus; Conn carries the same messages over a websocket
//     between processes.
//   - Sender: request/response, the equivalent of the extension runtime
//     channel. Runtime dispatches to in-process handlers; Conn correlates
//     replies by message ID, and Serve answers requests arriving on a Port.
//
// Nothing here guarantees delivery when the receiving side is absent.
// Callers degrade on their own (see the reconciliation deadline in
// package syncstore).
package messenger
