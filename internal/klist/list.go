// Package klist implements an intrusive, circular, doubly linked list: the
// O(1) insert/remove primitive shared by the buddy allocator
// (internal/buddy) and the interrupt dispatcher (internal/irq).
//
// A free block's own bytes host its list node — there is no separate node
// allocation — so this package models that by overlaying a *Node on a raw
// address, the same unsafe-overlay idiom used elsewhere in this kernel to
// interpret raw memory as Go values without going through an allocator.
package klist

import "unsafe"

// Node is the intrusive link. sizeof(Node) must never exceed the smallest
// block the embedding allocator can hand out; two pointers comfortably fit
// within any block large enough to be worth tracking.
type Node struct {
	prev, next *Node
}

// Init turns head into an empty circular list: a sentinel whose prev and
// next both point to itself.
func (head *Node) Init() {
	head.prev = head
	head.next = head
}

// Empty reports whether the list headed by head has no real nodes.
func (head *Node) Empty() bool {
	return head.next == head
}

// PushHead inserts n immediately after head, i.e. as the new first element.
func (head *Node) PushHead(n *Node) {
	n.next = head.next
	n.prev = head
	head.next.prev = n
	head.next = n
}

// PushTail inserts n immediately before head, i.e. as the new last element.
// The chain's head.prev back-reference always names the tail, so this is
// O(1) without a separate tail field.
func (head *Node) PushTail(n *Node) {
	n.prev = head.prev
	n.next = head
	head.prev.next = n
	head.prev = n
}

// PopHead removes and returns the first real node, or nil if the list is
// empty.
func (head *Node) PopHead() *Node {
	if head.Empty() {
		return nil
	}
	n := head.next
	n.Remove()
	return n
}

// Remove detaches n from whatever list it is linked into. It is a no-op,
// not a crash, if n is already detached (prev/next pointing to itself) —
// list primitives here may be called from interrupt context, where a
// crash is much harder to diagnose than a missed unlink.
func (n *Node) Remove() {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = n
	n.next = n
}

// Next returns the node following n. On an initialized list it is never
// nil: after the last real node it returns the sentinel head itself, so
// callers compare against head to detect the wrap-around.
func (n *Node) Next() *Node { return n.next }

// Addr returns the address n occupies, letting a caller turn a node back
// into the raw block address it was carved from.
func (n *Node) Addr() uintptr { return uintptr(unsafe.Pointer(n)) }

// NodeAt overlays a *Node onto the block starting at addr. The caller is
// responsible for ensuring addr names at least sizeof(Node) live,
// exclusively-owned bytes.
func NodeAt(addr uintptr) *Node {
	return (*Node)(unsafe.Pointer(addr))
}
