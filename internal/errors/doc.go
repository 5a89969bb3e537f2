// Package errors provides structured, coded errors for commutesync.
//
// Every failure that crosses a package boundary carries a code (e.g. "S020")
// that maps to a category, a short message and a longer explanation. Most
// failures in the synchronization layer are recovered locally and only logged;
// the coded form keeps those log lines and the CLI output consistent.
//
// # Error Categories
//
//   - config: configuration file and environment problems
//   - storage: persistence area failures (memory, SQLite, S3)
//   - transport: messenger failures (window bus, websocket, runtime channel)
//   - decode: malformed persisted or received values
//   - proxy: fetch proxy failures
//   - cli: command-line usage errors
//
// # Usage
//
//	err := errors.New("S020").
//	    WithDetail("key uprent-commute-addresses").
//	    Wrap(cause)
//
//	fmt.Println(err.Format())
package errors
