package render

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/net/html"
	"google.golang.org/api/calendar/v3"
)

// State is the expand/collapse state of a rendered item.
type State int

const (
	Collapsed State = iota
	Expanded
)

func (s State) String() string {
	switch s {
	case Collapsed:
		return "collapsed"
	case Expanded:
		return "expanded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Item is one rendered event together with its toggle state.
type Item struct {
	ID    string
	Event *calendar.Event

	view    *View
	builder *Builder
	node    *html.Node
	state   State
	panel   *html.Node
}

// State returns the current state of the item.
func (it *Item) State() State {
	it.view.mu.Lock()
	defer it.view.mu.Unlock()
	return it.state
}

// Node returns the item element.
func (it *Item) Node() *html.Node {
	return it.node
}

// Panel returns the detail panel while the item is expanded, otherwise nil.
func (it *Item) Panel() *html.Node {
	it.view.mu.Lock()
	defer it.view.mu.Unlock()
	return it.panel
}

// toggle flips the item. Expanding builds a fresh detail panel; collapsing
// removes it and forgets it.
func (it *Item) toggle() State {
	if it.panel == nil {
		it.panel = it.builder.buildPanel(it.Event)
		it.node.AppendChild(it.panel)
		SetAttr(it.node, attrAriaExpanded, "true")
		it.state = Expanded
		return it.state
	}

	it.node.RemoveChild(it.panel)
	it.panel = nil
	SetAttr(it.node, attrAriaExpanded, "false")
	it.state = Collapsed
	return it.state
}

// View is the result of one Render call. It owns the per-item state and
// serializes access to the rendered subtree.
type View struct {
	mu        sync.Mutex
	builder   *Builder
	container *html.Node
	items     []*Item
	byID      map[string]*Item
}

// Items returns the rendered items in display order.
func (v *View) Items() []*Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*Item, len(v.items))
	copy(out, v.items)
	return out
}

// Item returns the item with the given id, or nil.
func (v *View) Item(id string) *Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.byID[id]
}

// Toggle expands or collapses the item id and returns its new state.
func (v *View) Toggle(id string) (State, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	item, ok := v.byID[id]
	if !ok {
		return Collapsed, fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return item.toggle(), nil
}

// Render writes the contents of the output element.
func (v *View) Render(w io.Writer) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return RenderChildren(w, v.container)
}

// RenderItem writes the element of item id.
func (v *View) RenderItem(w io.Writer, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	item, ok := v.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, id)
	}
	return RenderNode(w, item.node)
}

// Events returns the events of the view in display order.
func (v *View) Events() []*calendar.Event {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]*calendar.Event, len(v.items))
	for i, it := range v.items {
		out[i] = it.Event
	}
	return out
}
