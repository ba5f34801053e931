/*
Package bus provides the bounded fan-out broadcaster behind Dockhand's
message routing.

Two instances exist in a running coordinator:

  - the process-wide command bus of OutboundRequest values, which every
    node session subscribes to and filters by credentials, and
  - one event bus per authenticated node, carrying node-originated
    envelopes to any number of WebSocket observers.

Both are lossy. Publish never blocks; a subscriber that falls
behind its bounded buffer loses messages and can inspect the loss
through Subscription.Dropped. The coordinator never stalls a node
session because an observer is slow.
*/
package bus
