// internal/dom/events.go
package dom

import (
	"sync/atomic"

	"golang.org/x/net/html"
)

// Event types dispatched by the picker, watcher and browser bridge.
const (
	EventClick       = "click"
	EventPointerOver = "pointerover"
	EventPointerOut  = "pointerout"
	EventKeyDown     = "keydown"
)

// EventPhase mirrors the DOM event phases.
type EventPhase int

const (
	PhaseNone EventPhase = iota
	PhaseCapturing
	PhaseAtTarget
	PhaseBubbling
)

// Event is a dispatched DOM event.
type Event struct {
	Type string
	// Key is set for keyboard events ("Escape", "Enter", ...).
	Key     string
	Bubbles bool

	Target        *html.Node
	CurrentTarget *html.Node
	Phase         EventPhase

	defaultPrevented   bool
	propagationStopped bool
}

// NewEvent returns a bubbling event of the given type.
func NewEvent(typ string) *Event {
	return &Event{Type: typ, Bubbles: true}
}

// NewKeyEvent returns a bubbling keydown event for key.
func NewKeyEvent(key string) *Event {
	return &Event{Type: EventKeyDown, Key: key, Bubbles: true}
}

// PreventDefault cancels the default action of the event.
func (e *Event) PreventDefault() { e.defaultPrevented = true }

// DefaultPrevented reports whether a listener called PreventDefault.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// StopPropagation keeps the event from reaching listeners on further nodes.
// Listeners on the current node still run.
func (e *Event) StopPropagation() { e.propagationStopped = true }

// PropagationStopped reports whether a listener called StopPropagation.
func (e *Event) PropagationStopped() bool { return e.propagationStopped }

// Listener handles a dispatched event.
type Listener func(e *Event)

type listener struct {
	typ     string
	fn      Listener
	capture bool
	removed atomic.Bool
}

// ListenerHandle unregisters a listener.
type ListenerHandle struct {
	doc  *Document
	node *html.Node
	l    *listener
}

// Remove detaches the listener. Idempotent; a listener removed mid-dispatch does not run.
func (h *ListenerHandle) Remove() {
	if h == nil || h.l == nil || !h.l.removed.CompareAndSwap(false, true) {
		return
	}
	d := h.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	ls := d.listeners[h.node]
	for i, l := range ls {
		if l == h.l {
			ls = append(ls[:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(d.listeners, h.node)
	} else {
		d.listeners[h.node] = ls
	}
}

// Active reports whether the listener is still registered.
func (h *ListenerHandle) Active() bool {
	return h != nil && h.l != nil && !h.l.removed.Load()
}

// AddEventListener registers fn for events of typ on node. Capture listeners run
// on the way down from the document to the target.
func (d *Document) AddEventListener(node *html.Node, typ string, fn Listener, capture bool) *ListenerHandle {
	l := &listener{typ: typ, fn: fn, capture: capture}
	d.mu.Lock()
	d.listeners[node] = append(d.listeners[node], l)
	d.mu.Unlock()
	return &ListenerHandle{doc: d, node: node, l: l}
}

// ListenerCount returns how many listeners of typ are registered on node.
func (d *Document) ListenerCount(node *html.Node, typ string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, l := range d.listeners[node] {
		if l.typ == typ {
			n++
		}
	}
	return n
}

type stop struct {
	node      *html.Node
	phase     EventPhase
	listeners []*listener
}

// Dispatch delivers e to target: capture listeners from the root down, then
// the target, then bubbling listeners back up. It returns false when a
// listener prevented the default action.
func (d *Document) Dispatch(target *html.Node, e *Event) bool {
	e.Target = target
	e.defaultPrevented = false
	e.propagationStopped = false

	d.mu.Lock()
	var path []*html.Node
	for n := target.Parent; n != nil; n = n.Parent {
		path = append(path, n)
	}
	var stops []stop
	for i := len(path) - 1; i >= 0; i-- {
		if ls := d.matchingLocked(path[i], e.Type, true, false); len(ls) > 0 {
			stops = append(stops, stop{node: path[i], phase: PhaseCapturing, listeners: ls})
		}
	}
	if ls := d.matchingLocked(target, e.Type, true, true); len(ls) > 0 {
		stops = append(stops, stop{node: target, phase: PhaseAtTarget, listeners: ls})
	}
	if e.Bubbles {
		for _, n := range path {
			if ls := d.matchingLocked(n, e.Type, false, false); len(ls) > 0 {
				stops = append(stops, stop{node: n, phase: PhaseBubbling, listeners: ls})
			}
		}
	}
	d.mu.Unlock()

	for _, s := range stops {
		if e.propagationStopped {
			break
		}
		e.CurrentTarget = s.node
		e.Phase = s.phase
		for _, l := range s.listeners {
			if l.removed.Load() {
				continue
			}
			d.safeCall("event listener "+e.Type, func() { l.fn(e) })
		}
	}
	e.CurrentTarget = nil
	e.Phase = PhaseNone
	return !e.defaultPrevented
}

func (d *Document) matchingLocked(n *html.Node, typ string, capture, both bool) []*listener {
	var out []*listener
	for _, l := range d.listeners[n] {
		if l.typ != typ {
			continue
		}
		if both || l.capture == capture {
			out = append(out, l)
		}
	}
	return out
}

// Click dispatches a click on target.
func (d *Document) Click(target *html.Node) bool {
	return d.Dispatch(target, NewEvent(EventClick))
}

// Hover dispatches pointerout on from (when set) followed by pointerover on to.
func (d *Document) Hover(from, to *html.Node) {
	if from != nil {
		d.Dispatch(from, NewEvent(EventPointerOut))
	}
	if to != nil {
		d.Dispatch(to, NewEvent(EventPointerOver))
	}
}

// KeyDown dispatches a keydown for key at the document root.
func (d *Document) KeyDown(key string) bool {
	target := d.Body()
	if target == nil {
		target = d.root
	}
	return d.Dispatch(target, NewKeyEvent(key))
}
