// Package syncstore keeps one tracked value consistent across a page,
// its companion extension, and other same-origin tabs.
//
// A Store runs in one execution context. In the extension context it
// reads and writes the authoritative area directly. In a page context it
// keeps a page-local cache and talks to the extension through a
// messenger.Port, where a storage bridge relays requests.
//
// Every store starts by reconciling: it asks the authoritative side for
// the current value and arms a deadline. Until either the reply arrives
// or the deadline passes, local writes never reach the authoritative
// store, so a late-starting empty context cannot erase shared data. After
// that the store is synced for good; a reply that arrives late is still
// applied.
//
// Changes carry an Origin. Persistence reacts only to OriginLocal, so a
// value received from another context is never written back (no echo).
//
// Usage:
//
//	reg := syncstore.NewRegistry()
//	addrs, err := syncstore.Open(reg, commute.Addresses,
//	    syncstore.Page(cache, window),
//	    syncstore.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	stop := addrs.Subscribe(func(c syncstore.Change[[]string]) {
//	    render(c.Value)
//	})
//	defer stop()
//
//	addrs.Set([]string{"Main St"})
package syncstore
