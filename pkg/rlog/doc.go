// Package rlog wraps zerolog for the engine: a package-level root
// Logger initialized once via Init, and With* helpers that derive
// children scoped by repository, branch, or commit id.
package rlog
