package engine

import (
	"sync"

	"github.com/rossdb/ross/pkg/editor"
)

// EditorHandle is one external reference to a cached editor. Sessions
// hold a handle for as long as they are connected; Close releases it,
// and releasing the last handle schedules the editor for TTL eviction;
// a subsequent OpenEditor within the TTL rescues it.
//
// Close is idempotent; a handle must not be used after Close.
type EditorHandle struct {
	ctx    *Context
	key    editorKey
	editor *editor.Editor
	once   sync.Once
}

// Editor returns the shared editor this handle references.
func (h *EditorHandle) Editor() *editor.Editor {
	return h.editor
}

// Close releases this reference. The editor itself stays cached until
// its TTL elapses with no remaining references.
func (h *EditorHandle) Close() {
	h.once.Do(func() {
		h.ctx.dropEditor(h.key)
	})
}
