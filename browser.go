package commutesync

import (
	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/bridge"
	"github.com/uprent-dev/commutesync/pkg/messenger"
)

// Browser simulates same-origin tabs sharing one page storage and one
// extension.
type Browser struct {
	ext    *Extension
	shared *area.Shared
}

// NewBrowser creates a browser around ext. ext may be nil to simulate
// a browser without the extension installed.
func NewBrowser(ext *Extension) *Browser {
	return &Browser{ext: ext, shared: area.NewShared()}
}

// Storage returns the shared page storage.
func (b *Browser) Storage() *area.Shared {
	return b.shared
}

// Tab is one open page with its window and, when the extension is
// installed, its content-script bridge.
type Tab struct {
	*Page

	Window *messenger.Window
	Bridge *bridge.Bridge
}

// OpenTab opens a tab. The bridge is attached before the page starts so
// the first reconciliation request is answered.
func (b *Browser) OpenTab(cfg Config) (*Tab, error) {
	w := messenger.NewWindow(messenger.WithWindowLogger(cfg.logger()))

	var br *bridge.Bridge
	var sender messenger.Sender
	if b.ext != nil {
		br = b.ext.Attach(w)
		sender = b.ext.Runtime
	}

	page, err := NewPage(b.shared.Tab(""), w, sender, cfg)
	if err != nil {
		if br != nil {
			br.Close()
		}
		w.Close()
		return nil, err
	}
	return &Tab{Page: page, Window: w, Bridge: br}, nil
}

// Close closes the tab's stores, bridge and window.
func (t *Tab) Close() error {
	err := t.Page.Close()
	if t.Bridge != nil {
		t.Bridge.Close()
	}
	t.Window.Close()
	t.Cache.Close()
	return err
}
