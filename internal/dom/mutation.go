// internal/dom/mutation.go
package dom

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// MutationType names the kind of change a MutationRecord describes.
type MutationType string

const (
	MutationChildList  MutationType = "childList"
	MutationAttributes MutationType = "attributes"
)

// MutationRecord describes one change to the tree.
type MutationRecord struct {
	Type MutationType
	// Target is the parent whose children changed, or the element whose attribute changed.
	Target        *html.Node
	Added         []*html.Node
	Removed       []*html.Node
	AttributeName string
	OldValue      string
}

// ObserveOptions selects which mutations an Observer receives.
type ObserveOptions struct {
	ChildList  bool
	Attributes bool
	// Subtree extends observation to every descendant of the target.
	Subtree bool
}

// MutationCallback receives the records produced by a single mutating call.
type MutationCallback func(records []MutationRecord)

// Observer delivers mutation records for a target until disconnected.
type Observer struct {
	doc    *Document
	target *html.Node
	opts   ObserveOptions
	fn     MutationCallback
	active atomic.Bool
}

// Observe starts watching target. Records are delivered synchronously on the
// goroutine that made the change, after the document lock is released.
func (d *Document) Observe(target *html.Node, opts ObserveOptions, fn MutationCallback) *Observer {
	o := &Observer{doc: d, target: target, opts: opts, fn: fn}
	o.active.Store(true)
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()
	return o
}

// Disconnect stops delivery. Safe to call more than once and from inside the callback.
func (o *Observer) Disconnect() {
	if !o.active.CompareAndSwap(true, false) {
		return
	}
	d := o.doc
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, other := range d.observers {
		if other == o {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			break
		}
	}
}

func (o *Observer) wants(rec MutationRecord) bool {
	switch rec.Type {
	case MutationChildList:
		if !o.opts.ChildList {
			return false
		}
	case MutationAttributes:
		if !o.opts.Attributes {
			return false
		}
	}
	if rec.Target == o.target {
		return true
	}
	return o.opts.Subtree && containsLocked(o.target, rec.Target)
}

type delivery struct {
	obs     *Observer
	records []MutationRecord
}

// pendingLocked matches records against the registered observers. Caller holds d.mu.
func (d *Document) pendingLocked(records ...MutationRecord) []delivery {
	var out []delivery
	for _, o := range d.observers {
		var matched []MutationRecord
		for _, rec := range records {
			if o.wants(rec) {
				matched = append(matched, rec)
			}
		}
		if len(matched) > 0 {
			out = append(out, delivery{obs: o, records: matched})
		}
	}
	return out
}

// deliver runs observer callbacks. Caller must not hold d.mu.
func (d *Document) deliver(ds []delivery) {
	for _, dl := range ds {
		if !dl.obs.active.Load() {
			continue
		}
		d.safeCall("mutation observer", func() { dl.obs.fn(dl.records) })
	}
}

func (d *Document) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Recovered from panic in callback.", zap.String("callback", what), zap.Any("panic", r))
		}
	}()
	fn()
}

// dropListenersLocked forgets every listener registered on n or its descendants.
func (d *Document) dropListenersLocked(n *html.Node) {
	walk(n, func(c *html.Node) {
		for _, l := range d.listeners[c] {
			l.removed.Store(true)
		}
		delete(d.listeners, c)
	})
}

func detachLocked(child *html.Node) *MutationRecord {
	parent := child.Parent
	if parent == nil {
		return nil
	}
	parent.RemoveChild(child)
	return &MutationRecord{Type: MutationChildList, Target: parent, Removed: []*html.Node{child}}
}

// -- Child List Mutations --

// AppendChild adds child as the last child of parent, moving it if it is already attached.
// Listeners on a moved node are kept.
func (d *Document) AppendChild(parent, child *html.Node) error {
	return d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child before ref, or appends when ref is nil.
func (d *Document) InsertBefore(parent, child, ref *html.Node) error {
	if parent == nil || child == nil {
		return fmt.Errorf("insert requires a parent and a child")
	}
	d.mu.Lock()
	if ref != nil && ref.Parent != parent {
		d.mu.Unlock()
		return ErrNotChild
	}
	if containsLocked(child, parent) {
		d.mu.Unlock()
		return fmt.Errorf("cannot insert a node into its own subtree")
	}
	var records []MutationRecord
	if rec := detachLocked(child); rec != nil {
		records = append(records, *rec)
	}
	parent.InsertBefore(child, ref)
	records = append(records, MutationRecord{Type: MutationChildList, Target: parent, Added: []*html.Node{child}})
	ds := d.pendingLocked(records...)
	d.mu.Unlock()

	d.deliver(ds)
	return nil
}

// RemoveChild detaches child from parent and drops every listener in its subtree.
func (d *Document) RemoveChild(parent, child *html.Node) error {
	d.mu.Lock()
	if child == nil || child.Parent != parent || parent == nil {
		d.mu.Unlock()
		return ErrNotChild
	}
	rec := detachLocked(child)
	d.dropListenersLocked(child)
	ds := d.pendingLocked(*rec)
	d.mu.Unlock()

	d.deliver(ds)
	return nil
}

// Remove detaches n from wherever it is. Detached nodes are a no-op.
func (d *Document) Remove(n *html.Node) {
	if p := d.Parent(n); p != nil {
		_ = d.RemoveChild(p, n)
	}
}

// ReplaceChild swaps old for replacement under parent. Listeners on old's subtree are dropped.
func (d *Document) ReplaceChild(parent, replacement, old *html.Node) error {
	d.mu.Lock()
	if old == nil || replacement == nil || parent == nil || old.Parent != parent {
		d.mu.Unlock()
		return ErrNotChild
	}
	var records []MutationRecord
	if replacement.Parent != nil {
		records = append(records, *detachLocked(replacement))
	}
	parent.InsertBefore(replacement, old)
	parent.RemoveChild(old)
	d.dropListenersLocked(old)
	records = append(records, MutationRecord{
		Type:    MutationChildList,
		Target:  parent,
		Added:   []*html.Node{replacement},
		Removed: []*html.Node{old},
	})
	ds := d.pendingLocked(records...)
	d.mu.Unlock()

	d.deliver(ds)
	return nil
}

// ReplaceBody moves the children and attributes of src (typically the body of a
// freshly parsed snapshot) into this document's body. The body element itself
// keeps its identity so observers on it stay attached; every old child is
// dropped along with its listeners.
func (d *Document) ReplaceBody(src *html.Node) error {
	d.mu.Lock()
	body := d.bodyLocked()
	if body == nil {
		d.mu.Unlock()
		return ErrNoBody
	}
	if src == nil || containsLocked(src, body) {
		d.mu.Unlock()
		return fmt.Errorf("replacement body must be a separate element")
	}

	rec := MutationRecord{Type: MutationChildList, Target: body}
	for c := body.FirstChild; c != nil; c = body.FirstChild {
		body.RemoveChild(c)
		d.dropListenersLocked(c)
		rec.Removed = append(rec.Removed, c)
	}
	for c := src.FirstChild; c != nil; c = src.FirstChild {
		src.RemoveChild(c)
		body.AppendChild(c)
		rec.Added = append(rec.Added, c)
	}
	body.Attr = append([]html.Attribute(nil), src.Attr...)

	ds := d.pendingLocked(rec)
	d.mu.Unlock()

	d.deliver(ds)
	return nil
}

// -- Attribute Mutations --

// SetAttr sets or replaces an attribute.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	d.mu.Lock()
	old, _ := attrLocked(n, key)
	setAttrLocked(n, key, val)
	ds := d.pendingLocked(MutationRecord{Type: MutationAttributes, Target: n, AttributeName: key, OldValue: old})
	d.mu.Unlock()

	d.deliver(ds)
}

func setAttrLocked(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes an attribute. Absent attributes are a no-op.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	d.mu.Lock()
	old, ok := attrLocked(n, key)
	if !ok {
		d.mu.Unlock()
		return
	}
	removeAttrLocked(n, key)
	ds := d.pendingLocked(MutationRecord{Type: MutationAttributes, Target: n, AttributeName: key, OldValue: old})
	d.mu.Unlock()

	d.deliver(ds)
}

func removeAttrLocked(n *html.Node, key string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}
