/*
Package engine ties the core together: the Context owns the storage
handle and the editor cache, and exposes repository and branch
lifecycle, editor handout with reference-counted TTL eviction, commit
checkout, and merge-base computation.

A Context is the embedding application's entry point. Everything else
(pkg/editor, pkg/storage, pkg/dropmap) is reachable through it.
*/
package engine
