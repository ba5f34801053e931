/*
Package node is the agent that runs next to a Docker daemon and carries
out coordinator commands against it.

The agent dials the coordinator's RPC endpoint, authenticates with its
(node_id, password) pair, and then serves commands from the stream:
list, inspect, start, stop, delete, and logs, each executed on its own
goroutine so one slow engine call never stalls the stream. A daemon
event watch pushes a fresh container list whenever containers are
created, started, stopped, or removed. Lost connections are retried
with capped exponential backoff.
*/
package node
