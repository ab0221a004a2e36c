// Package events implements a small generic publish/subscribe broker:
// register a buffered channel, publish a value to every registered
// channel, best-effort and non-blocking. pkg/editor instantiates one
// Broker[protocol.Message] per branch to implement the broadcast-to-peers
// half of the perform/commit protocol.
package events
