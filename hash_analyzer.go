package lochsemu

import (
	"bytes"
	"crypto/md5"

	"github.com/google/uuid"
)

// MDSize is the digest length TestMD5 compares against (MD5, 16 bytes).
const MDSize = 16

// ProcMemSnapshot is a captured view of process memory at one instant
// (procedure entry or exit), addressed absolutely. Only the bytes actually
// touched during the procedure need be present.
type ProcMemSnapshot struct {
	data map[uint32]byte
}

// NewProcMemSnapshot returns an empty snapshot.
func NewProcMemSnapshot() *ProcMemSnapshot {
	return &ProcMemSnapshot{data: make(map[uint32]byte)}
}

// Set records the byte at addr.
func (s *ProcMemSnapshot) Set(addr uint32, b byte) { s.data[addr] = b }

// Get returns the byte at addr, 0 if never recorded.
func (s *ProcMemSnapshot) Get(addr uint32) byte { return s.data[addr] }

// FillRegion returns r's bytes as a contiguous slice.
func (s *ProcMemSnapshot) FillRegion(r MemRegion) []byte {
	out := make([]byte, r.Len)
	for i := range out {
		out[i] = s.Get(r.Addr + uint32(i))
	}
	return out
}

// ProcContext is the captured input/output state of one traced procedure
// call: the candidate regions a hash analyzer should consider, the
// snapshots to read their bytes from, and the taint recorded at entry.
// Grounded on hash_analyzer.cpp's ExecuteTraceEvent/ProcContext parameter.
type ProcContext struct {
	ID            uuid.UUID
	Entry         uint32
	InputRegions  []MemRegion
	OutputRegions []MemRegion
	Inputs        *ProcMemSnapshot
	Outputs       *ProcMemSnapshot
	InputTaint    *MemoryTaint
}

// NewProcContext assigns a fresh opaque ID: EIP values collide across
// re-runs of the same binary loaded at a different base address, so
// correlating a procedure context across an archive reload needs an
// identity independent of it.
func NewProcContext(entry uint32) *ProcContext {
	return &ProcContext{ID: uuid.New(), Entry: entry}
}

// AlgParam is one named, captured argument to an AlgTag (e.g. "Message",
// the 13 input bytes; "Digest", the 16 output bytes).
type AlgParam struct {
	Name   string
	Region MemRegion
	Data   []byte
}

// AlgTag records that a recognized algorithm (by name) was found operating
// over a specific region pair at a specific procedure entry.
type AlgTag struct {
	Name        string
	Description string
	ProcID      uuid.UUID
	ProcEntry   uint32
	Params      []AlgParam
}

// NewAlgTag returns a tag with no params yet.
func NewAlgTag(name, description string, procEntry uint32) *AlgTag {
	return &AlgTag{Name: name, Description: description, ProcEntry: procEntry}
}

// AddParam attaches a named region/bytes pair to the tag.
func (t *AlgTag) AddParam(name string, region MemRegion, data []byte) {
	t.Params = append(t.Params, AlgParam{Name: name, Region: region, Data: data})
}

// MessageEnqueuer receives a freshly-recognized algorithm output as a new
// candidate protocol message, so downstream refinement can process it the
// same as an originally-tainted input.
type MessageEnqueuer interface {
	EnqueueNewMessage(region MemRegion, data []byte, tr TaintRegion, tag *AlgTag, ctx *ProcContext, scanForMore bool)
}

// MD5Analyzer compares the recomputed MD5 of each singly-tainted,
// contiguous input region against every 16-byte output region, and reports
// a match as an AlgTag. Grounded on
// original_source/Prophet/protocol/algorithms/hash_analyzer.cpp.
type MD5Analyzer struct {
	enqueuer MessageEnqueuer
	Tags     []*AlgTag
}

// NewMD5Analyzer returns an analyzer that reports recognized digests
// through enqueuer.
func NewMD5Analyzer(enqueuer MessageEnqueuer) *MD5Analyzer {
	return &MD5Analyzer{enqueuer: enqueuer}
}

// OnOriginalProcedure examines every input region of ctx: only a region
// whose recorded taint forms exactly one contiguous source-bit run is a
// candidate (a region built from bytes originating in more than one place,
// or untainted, can't be "the" digest input). Every 16-byte output region
// is then tested against it.
func (a *MD5Analyzer) OnOriginalProcedure(ctx *ProcContext) bool {
	for _, input := range ctx.InputRegions {
		tin := ctx.InputTaint.Get(input.Addr, int(input.Len))
		if !tin.IsAnyTainted() {
			continue
		}
		regions := tin.GenerateRegions()
		if len(regions) != 1 {
			continue
		}

		for _, output := range ctx.OutputRegions {
			if output.Len != MDSize {
				continue
			}
			if a.TestMD5(ctx, input, output, regions[0]) {
				return true
			}
		}
	}
	return false
}

// TestMD5 recomputes MD5 over input's bytes (from ctx.Inputs) and compares
// it to output's bytes (from ctx.Outputs). On a match, it records an AlgTag
// and enqueues the output region as a new candidate message.
func (a *MD5Analyzer) TestMD5(ctx *ProcContext, input, output MemRegion, tr TaintRegion) bool {
	in := ctx.Inputs.FillRegion(input)
	digest := ctx.Outputs.FillRegion(output)

	sum := md5.Sum(in)
	if !bytes.Equal(sum[:], digest) {
		return false
	}

	tag := NewAlgTag("MD5", "Message Digest", ctx.Entry)
	tag.ProcID = ctx.ID
	tag.AddParam("Message", input, in)
	tag.AddParam("Digest", output, digest)
	a.Tags = append(a.Tags, tag)

	if a.enqueuer != nil {
		a.enqueuer.EnqueueNewMessage(output, digest, tr, tag, ctx, false)
	}
	return true
}
