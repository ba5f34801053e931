/*
Package gateway is the user-facing HTTP surface of the coordinator.

The REST routes under /api/containers all follow the same cycle: mint a
request id, register a one-shot reply slot in the pending table, publish
the command on the command bus addressed by the caller's (node_id,
password) query pair, and await the reply within a per-endpoint
deadline. Timeouts answer 408, node-reported errors 400, and transport
faults 500; the pending slot is removed on every path that gives up
waiting.

GET /observe-containers upgrades to a websocket, subscribes to the
node's event bus, primes an initial snapshot, and then forwards every
container-list update as a {"containers":[...]} text frame. Slow
observers lose updates rather than slowing the node.
*/
package gateway
