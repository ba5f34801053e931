/*
Package protocol defines the wire schema exchanged between the Dockhand
coordinator and its node agents.

A single message type, Envelope, travels in both directions on the node
RPC stream as JSON. The envelope is a tagged union: exactly one of its
payload pointers is non-nil. Consumers drop envelopes without a payload.

	Envelope
	├── ServerCommand   node → coordinator control (auth, status query)
	├── ServerResponse  coordinator → node control reply
	├── NodeCommand     coordinator → node container operation
	└── NodeResponse    node → coordinator typed reply or error

Every NodeResponse variant carries a RequestKey. A key with a request id
("value" form) correlates the reply to the user request that produced
it; a key with Unspecific set marks a spontaneous update (for example a
container state change) that is broadcast to observers instead.
*/
package protocol
