/*
Package editor implements the live working copy of a branch: the cached
state at head with all live changes applied, the perform / sync /
partial-sync / commit protocol, and the broadcast fan-out to subscribed
sessions.

Editors are created by pkg/engine's Context, which caches them per
branch and evicts them a TTL after the last session lets go. All
operations on one editor are serialized by its lock, so the order in
which batches land on a branch is total and broadcast order matches
apply order.
*/
package editor
