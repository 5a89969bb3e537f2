// Package area provides the key/value persistence areas that back
// synchronized stores.
//
// An Area is the Go equivalent of a browser storage area: the extension's
// isolated storage (Memory, SQLite, S3) or a page's same-origin storage
// shared by every tab (Shared). Values are opaque bytes; callers encode
// them (JSON everywhere in this module).
//
// Watchers observe changes made through the area. Memory, SQLite and S3
// notify every watcher including the writer's own, mirroring the
// extension storage change event. Shared notifies only the other tabs,
// mirroring the page storage event. No area notifies when a write leaves
// the stored bytes unchanged.
//
// Example:
//
//	local := area.NewMemory()
//	stop := local.Watch(func(c area.Change) {
//	    fmt.Printf("%s: %s -> %s\n", c.Key, c.OldValue, c.NewValue)
//	})
//	defer stop()
//
//	local.Set(ctx, "uprent-commute-addresses", []byte(`["Main St"]`))
package area
