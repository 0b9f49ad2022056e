package lochsemu

import (
	"encoding/json"
	"hash/fnv"
	"unicode"
)

// Message is a tainted buffer in the target process's memory, treated as a
// candidate protocol message. Mirrors original_source's Message (base
// address + the snapshot of bytes at capture time).
type Message struct {
	Base uint32
	Data []byte
}

// NewMessage captures a fixed snapshot of data starting at base.
func NewMessage(base uint32, data []byte) *Message {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &Message{Base: base, Data: cp}
}

// Size returns the message's byte length.
func (m *Message) Size() uint32 { return uint32(len(m.Data)) }

// Get returns the byte at offset.
func (m *Message) Get(offset int) byte { return m.Data[offset] }

// CallStackEntry identifies one frame of a call stack by its procedure
// entry address (the same Entry a disassembled Inst records).
type CallStackEntry struct {
	Entry uint32
}

// CallStack is ordered outermost-frame-first.
type CallStack []CallStackEntry

// Hash combines every frame's entry address into one stable value, used to
// correlate accesses that happened from the "same" calling context without
// keeping the full stack around. Grounded on msgaccess.cpp's
// StackHashComparator / GetProcStackHash.
func (cs CallStack) Hash() uint32 {
	h := fnv.New32a()
	for _, f := range cs {
		var b [4]byte
		b[0] = byte(f.Entry)
		b[1] = byte(f.Entry >> 8)
		b[2] = byte(f.Entry >> 16)
		b[3] = byte(f.Entry >> 24)
		h.Write(b[:])
	}
	return h.Sum32()
}

// MessageAccess records one byte of a Message being read, and the call
// stack active when it happened.
type MessageAccess struct {
	Offset    uint32
	Context   *TContext
	CallStack CallStack
}

// MessageAccessLog watches ExecuteTrace events for reads that touch
// currMsg and whose value matches the message's recorded byte at that
// offset (a value-matching filter: the same address may be read many times
// for many purposes, only matching reads are really about this message).
// Grounded on original_source/Prophet/protocol/analyzers/msgaccess.cpp.
type MessageAccessLog struct {
	currMsg     *Message
	callStackFn func() CallStack
	accesses    []*MessageAccess
}

// NewMessageAccessLog returns a log watching msg, pulling the active call
// stack from callStackFn at each matching access.
func NewMessageAccessLog(msg *Message, callStackFn func() CallStack) *MessageAccessLog {
	return &MessageAccessLog{currMsg: msg, callStackFn: callStackFn}
}

// Reset discards every recorded access.
func (l *MessageAccessLog) Reset() {
	l.accesses = l.accesses[:0]
}

// Accesses returns the recorded accesses in trace order.
func (l *MessageAccessLog) Accesses() []*MessageAccess { return l.accesses }

// OnExecuteTrace inspects ctx's memory read, if any, byte by byte.
func (l *MessageAccessLog) OnExecuteTrace(ctx *TContext) {
	if ctx.Mr.Len == 0 {
		return
	}
	for i := 0; i < ctx.Mr.Len; i++ {
		data := byte(ctx.Mr.Val >> (8 * uint(i)))
		l.onMemRead(ctx, ctx.Mr.Addr+uint32(i), data)
	}
}

func (l *MessageAccessLog) onMemRead(ctx *TContext, addr uint32, data byte) {
	if addr < l.currMsg.Base || addr >= l.currMsg.Base+l.currMsg.Size() {
		return
	}
	offset := addr - l.currMsg.Base
	if data != l.currMsg.Get(int(offset)) {
		return
	}
	var cs CallStack
	if l.callStackFn != nil {
		cs = l.callStackFn()
	}
	l.accesses = append(l.accesses, &MessageAccess{Offset: offset, Context: ctx, CallStack: cs})
}

// OnComplete runs the reverse-order-pair-swap repair heuristic: two
// adjacent accesses at offsets (n, n-1), recorded in that order, sharing
// the same call-stack hash, almost always means the underlying code read
// them high-byte-first — swap them back into ascending order.
func (l *MessageAccessLog) OnComplete() {
	for i := 0; i < len(l.accesses)-1; i++ {
		a, b := l.accesses[i], l.accesses[i+1]
		if a.Offset == b.Offset+1 && a.CallStack.Hash() == b.CallStack.Hash() {
			l.accesses[i], l.accesses[i+1] = b, a
		}
	}
}

// MessageTreeNode is one node of a MessageTree: an inclusive byte range
// [L,R] and, for an internal node, its children in ascending-offset order.
// A node with no children is a leaf.
type MessageTreeNode struct {
	L, R     int
	Children []*MessageTreeNode
}

// IsLeaf reports whether the node has no children.
func (n *MessageTreeNode) IsLeaf() bool { return len(n.Children) == 0 }

// MessageTree is a hierarchical segmentation of a Message, initially one
// leaf per byte under a single root.
type MessageTree struct {
	Msg  *Message
	Root *MessageTreeNode
}

// NewMessageTree builds the initial per-byte-leaf tree for msg.
func NewMessageTree(msg *Message) *MessageTree {
	root := &MessageTreeNode{L: 0, R: int(msg.Size()) - 1}
	for i := 0; i < len(msg.Data); i++ {
		root.Children = append(root.Children, &MessageTreeNode{L: i, R: i})
	}
	return &MessageTree{Msg: msg, Root: root}
}

// MessageType selects which character class TokenizeRefiner treats as a
// "token" byte.
type MessageType int

const (
	MessageASCII MessageType = iota
	MessageBinary
)

// TokenizeRefiner merges adjacent leaves that are both composed entirely of
// token characters, down to a configured subtree depth. Grounded on
// original_source/Prophet/protocol/analyzers/tokenize_refiner.cpp,
// transcribed field-for-field.
type TokenizeRefiner struct {
	msg       *Message
	typ       MessageType
	depth     int
	nodeDepth map[*MessageTreeNode]int
}

// NewTokenizeRefiner returns a refiner for msg, classifying bytes per typ,
// merging leaves up to (but not including) subtree depth.
func NewTokenizeRefiner(msg *Message, typ MessageType, depth int) *TokenizeRefiner {
	return &TokenizeRefiner{msg: msg, typ: typ, depth: depth, nodeDepth: make(map[*MessageTreeNode]int)}
}

// IsTokenChar classifies ch per the refiner's MessageType.
func (r *TokenizeRefiner) IsTokenChar(ch byte) bool {
	switch r.typ {
	case MessageASCII:
		return !unicode.IsSpace(rune(ch)) && !unicode.IsControl(rune(ch))
	case MessageBinary:
		return (ch >= 0x20 && ch <= 0x7f) || ch == 0x0a || ch == 0x0d
	}
	return false
}

// CanConcatenate reports whether two leaves may be merged into one: both
// must be leaves, neither may be a lone literal space, and every byte in
// both spans must be a token character.
func (r *TokenizeRefiner) CanConcatenate(l, rr *MessageTreeNode) bool {
	if !l.IsLeaf() || !rr.IsLeaf() {
		return false
	}
	if l.L == l.R && r.msg.Get(l.L) == ' ' {
		return false
	}
	if rr.L == rr.R && r.msg.Get(rr.L) == ' ' {
		return false
	}
	for i := l.L; i <= l.R; i++ {
		if !r.IsTokenChar(r.msg.Get(i)) {
			return false
		}
	}
	for i := rr.L; i <= rr.R; i++ {
		if !r.IsTokenChar(r.msg.Get(i)) {
			return false
		}
	}
	return true
}

// CalculateDepth memoizes each node's subtree depth (0 for a leaf),
// required by RefineNode's "don't merge below this depth" check.
func (r *TokenizeRefiner) CalculateDepth(node *MessageTreeNode) int {
	if node.IsLeaf() {
		r.nodeDepth[node] = 0
		return 0
	}
	d := 0
	for _, c := range node.Children {
		cd := r.CalculateDepth(c)
		if cd > d {
			d = cd
		}
	}
	r.nodeDepth[node] = d + 1
	return d + 1
}

// RefineNode merges node's adjacent mergeable children in place. A node
// that collapses to a single remaining child becomes a leaf itself
// (children cleared) rather than keeping a redundant single-child wrapper.
func (r *TokenizeRefiner) RefineNode(node *MessageTreeNode) {
	if node.IsLeaf() {
		return
	}

	newChildren := []*MessageTreeNode{node.Children[0]}
	prev := node.Children[0]
	for i := 1; i < len(node.Children); i++ {
		child := node.Children[i]
		if r.nodeDepth[child] < r.depth && r.CanConcatenate(prev, child) {
			prev.R = child.R
		} else {
			prev = child
			newChildren = append(newChildren, child)
		}
	}

	if len(newChildren) == 1 {
		node.Children = nil
	} else {
		node.Children = newChildren
	}
}

// RefineTree computes subtree depths, then applies RefineNode bottom-up
// across the whole tree so a freshly-merged child's parent sees it as a
// leaf at the next level up.
func (r *TokenizeRefiner) RefineTree(tree *MessageTree) {
	r.CalculateDepth(tree.Root)
	r.refineBottomUp(tree.Root)
}

func (r *TokenizeRefiner) refineBottomUp(node *MessageTreeNode) {
	if node.IsLeaf() {
		return
	}
	for _, c := range node.Children {
		r.refineBottomUp(c)
	}
	r.RefineNode(node)
}

// Protocol is the engine subscriber owning the set of active Messages and
// their MessageAccessLogs, and the entry point for running a
// TokenizeRefiner once a message's access log is complete.
type Protocol struct {
	logs        []*MessageAccessLog
	callStackFn func() CallStack
}

// NewProtocol returns an empty Protocol subscriber. callStackFn supplies
// the active call stack for each matching message access (nil is fine when
// call-stack correlation isn't needed, e.g. in tests).
func NewProtocol(callStackFn func() CallStack) *Protocol {
	return &Protocol{callStackFn: callStackFn}
}

// Watch starts logging accesses to msg.
func (p *Protocol) Watch(msg *Message) *MessageAccessLog {
	l := NewMessageAccessLog(msg, p.callStackFn)
	p.logs = append(p.logs, l)
	return l
}

// OnExecuteTrace forwards ctx to every active message's access log. Called
// by the Engine immediately after the trace buffer records ctx.
func (p *Protocol) OnExecuteTrace(ctx *TContext) {
	for _, l := range p.logs {
		l.OnExecuteTrace(ctx)
	}
}

func (p *Protocol) OnPreExecute(ev *PreExecuteEvent)         {}
func (p *Protocol) OnPostExecute(ev *PostExecuteEvent)       {}
func (p *Protocol) OnMemRead(ev *MemReadEvent)               {}
func (p *Protocol) OnMemWrite(ev *MemWriteEvent)             {}
func (p *Protocol) OnProcessPreRun(ev *ProcessPreRunEvent)   {}
func (p *Protocol) OnProcessPostRun(ev *ProcessPostRunEvent) {
	for _, l := range p.logs {
		l.OnComplete()
	}
}
func (p *Protocol) OnProcessPreLoad(ev *ProcessPreLoadEvent)    {}
func (p *Protocol) OnProcessPostLoad(ev *ProcessPostLoadEvent)  { p.logs = nil }
func (p *Protocol) OnWinapiPreCall(ev *WinapiCallEvent)         {}
func (p *Protocol) OnWinapiPostCall(ev *WinapiCallEvent)        {}

type protocolDoc struct {
	Messages []protocolMessageDoc `json:"messages"`
}

type protocolMessageDoc struct {
	Base uint32 `json:"base"`
	Data []byte `json:"data"`
}

// Serialize persists each watched message's base/bytes (the access logs
// themselves are derived data, rebuilt by re-running analysis, not
// archived).
func (p *Protocol) Serialize() (json.RawMessage, error) {
	doc := protocolDoc{}
	for _, l := range p.logs {
		doc.Messages = append(doc.Messages, protocolMessageDoc{Base: l.currMsg.Base, Data: l.currMsg.Data})
	}
	return json.Marshal(doc)
}

// Deserialize restores the watched-message set (with empty access logs).
func (p *Protocol) Deserialize(data json.RawMessage) error {
	var doc protocolDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	p.logs = nil
	for _, m := range doc.Messages {
		p.Watch(NewMessage(m.Base, m.Data))
	}
	return nil
}
