/*
Package session implements the coordinator's node-facing RPC sessions.

A node dials the RPC listener, upgrades to a websocket, and exchanges
JSON envelopes on a single bidirectional stream. The first AuthRequest
on the stream authenticates the session and registers the node's event
bus in the presence registry under (node_id, password); the pair never
changes for the life of the stream.

	         command bus ──► egress ─┐
	                                 ▼
	 node ◄── writer ◄── outbound channel (bounded, lossy)
	 node ──► ingress ──► pending table (correlated replies)
	                 └──► event bus    (spontaneous updates)

Failure semantics: a reply whose pending entry has already been removed
(caller timed out) is republished on the event bus as if it were
spontaneous. A full outbound channel drops the command with a warning;
the caller observes a timeout. When the stream ends, the session
removes the node from the registry, closes its event bus, and cancels
its command-bus subscription. One session's failure never touches
another.
*/
package session
