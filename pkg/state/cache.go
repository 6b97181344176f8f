// Package state keeps a local mirror of wall processor entities:
// displays, layouts, snapshots, and per-display windows and inputs.
// Collections are replaced wholesale by a full refresh and patched in
// place by server notifications; readers always get copies.
package state

import (
	"sync"

	"wallctl-go/pkg/metrics"
)

// Display is a physical output surface of the wall processor.
type Display struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Layout is a stored arrangement of windows across displays.
type Layout struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Window is a video region on one display.
type Window struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Input is a source feeding windows on one display.
type Input struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Snapshot is a recallable saved state of the wall.
type Snapshot struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Cache mirrors the device-side collections. Display names are not
// guaranteed unique; ids are unique within their collection.
type Cache struct {
	mu        sync.RWMutex
	displays  []Display
	layouts   []Layout
	snapshots []Snapshot
	windows   map[int][]Window
	inputs    map[int][]Input
	onChange  []func()
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		windows: make(map[int][]Window),
		inputs:  make(map[int][]Input),
	}
}

// OnChange registers a hook invoked after every successful mutation, so
// collaborators can rebuild derived views (choice lists, feedbacks).
// Hooks run outside the cache lock.
func (c *Cache) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

func (c *Cache) changed() {
	c.mu.RLock()
	hooks := append([]func(){}, c.onChange...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

func (c *Cache) updateGauges() {
	m := metrics.Global()
	m.CacheDisplays.Set(float64(len(c.displays)))
	m.CacheLayouts.Set(float64(len(c.layouts)))
	m.CacheSnapshots.Set(float64(len(c.snapshots)))
}

// ReplaceAll installs the result of a full refresh. The per-display
// window and input collections are reset; SetDisplayIO fills them in.
func (c *Cache) ReplaceAll(displays []Display, layouts []Layout, snapshots []Snapshot) {
	c.mu.Lock()
	c.displays = append([]Display(nil), displays...)
	c.layouts = append([]Layout(nil), layouts...)
	c.snapshots = append([]Snapshot(nil), snapshots...)
	c.windows = make(map[int][]Window)
	c.inputs = make(map[int][]Input)
	c.updateGauges()
	c.mu.Unlock()
	c.changed()
}

// SetDisplayIO installs one display's windows and inputs as a pair, so
// observers never see one without the other.
func (c *Cache) SetDisplayIO(displayID int, windows []Window, inputs []Input) {
	c.mu.Lock()
	c.windows[displayID] = append([]Window(nil), windows...)
	c.inputs[displayID] = append([]Input(nil), inputs...)
	c.mu.Unlock()
	c.changed()
}

// UpsertDisplay replaces the display with the same id in place, or
// appends it.
func (c *Cache) UpsertDisplay(d Display) {
	c.mu.Lock()
	replaced := false
	for i := range c.displays {
		if c.displays[i].ID == d.ID {
			c.displays[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		c.displays = append(c.displays, d)
	}
	c.updateGauges()
	c.mu.Unlock()
	c.changed()
}

// UpsertLayout replaces the layout with the same id in place, or
// appends it.
func (c *Cache) UpsertLayout(l Layout) {
	c.mu.Lock()
	replaced := false
	for i := range c.layouts {
		if c.layouts[i].ID == l.ID {
			c.layouts[i] = l
			replaced = true
			break
		}
	}
	if !replaced {
		c.layouts = append(c.layouts, l)
	}
	c.updateGauges()
	c.mu.Unlock()
	c.changed()
}

// UpsertSnapshot replaces the snapshot with the same id in place, or
// appends it.
func (c *Cache) UpsertSnapshot(s Snapshot) {
	c.mu.Lock()
	replaced := false
	for i := range c.snapshots {
		if c.snapshots[i].ID == s.ID {
			c.snapshots[i] = s
			replaced = true
			break
		}
	}
	if !replaced {
		c.snapshots = append(c.snapshots, s)
	}
	c.updateGauges()
	c.mu.Unlock()
	c.changed()
}

// DeleteDisplay removes the display and cascades to its windows and
// inputs. Returns whether anything was removed.
func (c *Cache) DeleteDisplay(id int) bool {
	c.mu.Lock()
	removed := false
	for i := range c.displays {
		if c.displays[i].ID == id {
			c.displays = append(c.displays[:i], c.displays[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		delete(c.windows, id)
		delete(c.inputs, id)
		c.updateGauges()
	}
	c.mu.Unlock()
	if removed {
		c.changed()
	}
	return removed
}

// DeleteLayout removes the layout with the given id.
func (c *Cache) DeleteLayout(id int) bool {
	c.mu.Lock()
	removed := false
	for i := range c.layouts {
		if c.layouts[i].ID == id {
			c.layouts = append(c.layouts[:i], c.layouts[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		c.updateGauges()
	}
	c.mu.Unlock()
	if removed {
		c.changed()
	}
	return removed
}

// DeleteSnapshot removes the snapshot with the given id.
func (c *Cache) DeleteSnapshot(id int) bool {
	c.mu.Lock()
	removed := false
	for i := range c.snapshots {
		if c.snapshots[i].ID == id {
			c.snapshots = append(c.snapshots[:i], c.snapshots[i+1:]...)
			removed = true
			break
		}
	}
	if removed {
		c.updateGauges()
	}
	c.mu.Unlock()
	if removed {
		c.changed()
	}
	return removed
}

// Displays returns a copy of the display collection in cache order.
func (c *Cache) Displays() []Display {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Display(nil), c.displays...)
}

// Layouts returns a copy of the layout collection in cache order.
func (c *Cache) Layouts() []Layout {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Layout(nil), c.layouts...)
}

// Snapshots returns a copy of the snapshot collection in cache order.
func (c *Cache) Snapshots() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Snapshot(nil), c.snapshots...)
}

// Windows returns a copy of one display's windows.
func (c *Cache) Windows(displayID int) []Window {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Window(nil), c.windows[displayID]...)
}

// Inputs returns a copy of one display's inputs.
func (c *Cache) Inputs(displayID int) []Input {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Input(nil), c.inputs[displayID]...)
}
