// Package coordinator assembles the routing core: presence registry,
// pending table, and command bus, wired to the node RPC server on one
// listener and the REST/websocket facade on another. Both listeners run
// concurrently; the coordinator exits when either fails or its context
// is cancelled.
package coordinator
