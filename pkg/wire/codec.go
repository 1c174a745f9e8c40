// Package wire implements the stable binary encoding used for
// KV-Store Value payloads (spec §6: "a stable binary codec... byte-exact
// interoperability is required across nodes running different builds").
//
// The pack's example repos generate their wire codecs from IDL
// (protobuf/Thrift) through an external compiler this environment
// cannot invoke, so this codec is hand-written against
// encoding/binary: a fixed, versioned, big-endian field order with
// explicit length prefixes for variable-length data. Every encoder
// writes fields in the same order every time, which is what byte-exact
// interoperability actually requires; no reflection or schema
// negotiation is involved.
package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"sort"
	"time"

	"github.com/openr-go/openr/pkg/model"
)

// schemaVersion guards against decoding a payload encoded by an
// incompatible future layout.
const schemaVersion = 1

type writer struct {
	buf []byte
}

func (w *writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) u32(v uint32) { w.buf = binary.BigEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64) { w.buf = binary.BigEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)  { w.u64(uint64(v)) }
func (w *writer) bytes(b []byte) {
	w.u32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}
func (w *writer) str(s string) { w.bytes([]byte(s)) }

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) need(n int) bool {
	if r.err != nil || r.off+n > len(r.buf) {
		r.fail(fmt.Errorf("wire: truncated payload"))
		return false
	}
	return true
}

func (r *reader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *reader) i64() int64 { return int64(r.u64()) }

func (r *reader) bytes() []byte {
	n := r.u32()
	if !r.need(int(n)) {
		return nil
	}
	b := append([]byte(nil), r.buf[r.off:r.off+int(n)]...)
	r.off += int(n)
	return b
}

func (r *reader) str() string { return string(r.bytes()) }

// EncodeAdjacencyDatabase serializes an AdjacencyDatabase.
func EncodeAdjacencyDatabase(adb model.AdjacencyDatabase) []byte {
	w := &writer{}
	w.u8(schemaVersion)
	w.str(adb.ThisNodeName)
	w.u32(adb.NodeLabel)
	w.u8(boolByte(adb.IsOverloaded))
	w.str(adb.AreaID)
	w.u32(uint32(len(adb.Adjacencies)))
	for _, a := range adb.Adjacencies {
		w.str(a.OtherNodeName)
		w.str(a.LocalIfName)
		w.str(a.RemoteIfName)
		w.str(a.NextHopV4)
		w.str(a.NextHopV6)
		w.u32(a.Metric)
		w.u32(a.AdjLabel)
		w.u8(boolByte(a.IsOverloaded))
		w.i64(a.RTTMicroseconds)
		w.i64(a.Timestamp.Unix())
		w.u32(a.Weight)
	}
	w.u32(uint32(len(adb.PerfEvents)))
	for _, e := range adb.PerfEvents {
		w.str(e.Name)
		w.i64(e.Timestamp.Unix())
	}
	return w.buf
}

// DecodeAdjacencyDatabase deserializes bytes written by
// EncodeAdjacencyDatabase.
func DecodeAdjacencyDatabase(data []byte) (model.AdjacencyDatabase, error) {
	r := &reader{buf: data}
	if v := r.u8(); v != schemaVersion {
		return model.AdjacencyDatabase{}, fmt.Errorf("wire: unsupported adjacency schema version %d", v)
	}
	var adb model.AdjacencyDatabase
	adb.ThisNodeName = r.str()
	adb.NodeLabel = r.u32()
	adb.IsOverloaded = r.u8() != 0
	adb.AreaID = r.str()
	n := r.u32()
	adb.Adjacencies = make([]model.Adjacency, 0, n)
	for i := uint32(0); i < n; i++ {
		var a model.Adjacency
		a.OtherNodeName = r.str()
		a.LocalIfName = r.str()
		a.RemoteIfName = r.str()
		a.NextHopV4 = r.str()
		a.NextHopV6 = r.str()
		a.Metric = r.u32()
		a.AdjLabel = r.u32()
		a.IsOverloaded = r.u8() != 0
		a.RTTMicroseconds = r.i64()
		a.Timestamp = time.Unix(r.i64(), 0).UTC()
		a.Weight = r.u32()
		adb.Adjacencies = append(adb.Adjacencies, a)
	}
	m := r.u32()
	adb.PerfEvents = make([]model.PerfEvent, 0, m)
	for i := uint32(0); i < m; i++ {
		var e model.PerfEvent
		e.Name = r.str()
		e.Timestamp = time.Unix(r.i64(), 0).UTC()
		adb.PerfEvents = append(adb.PerfEvents, e)
	}
	if r.err != nil {
		return model.AdjacencyDatabase{}, r.err
	}
	return adb, nil
}

// EncodePrefixEntry serializes a PrefixEntry.
func EncodePrefixEntry(pe model.PrefixEntry) []byte {
	w := &writer{}
	w.u8(schemaVersion)
	w.str(pe.Prefix.String())
	w.u8(uint8(pe.Type))
	w.u8(uint8(pe.ForwardingType))
	w.u8(uint8(pe.ForwardingAlgorithm))
	w.u32(uint32(int32ToU32(pe.Metrics.PathPreference)))
	w.u32(uint32(int32ToU32(pe.Metrics.SourcePreference)))
	w.u32(uint32(int32ToU32(pe.Metrics.Distance)))

	tags := make([]string, 0, len(pe.Tags))
	for t := range pe.Tags {
		tags = append(tags, t)
	}
	sort.Strings(tags) // map order is random; sorted tags keep the encoding stable
	w.u32(uint32(len(tags)))
	for _, t := range tags {
		w.str(t)
	}
	w.u32(uint32(len(pe.AreaStack)))
	for _, a := range pe.AreaStack {
		w.str(a)
	}
	if pe.MinNexthop != nil {
		w.u8(1)
		w.u32(uint32(*pe.MinNexthop))
	} else {
		w.u8(0)
	}
	return w.buf
}

// DecodePrefixEntry deserializes bytes written by EncodePrefixEntry.
func DecodePrefixEntry(data []byte) (model.PrefixEntry, error) {
	r := &reader{buf: data}
	if v := r.u8(); v != schemaVersion {
		return model.PrefixEntry{}, fmt.Errorf("wire: unsupported prefix schema version %d", v)
	}
	var pe model.PrefixEntry
	prefixStr := r.str()
	prefix, err := netip.ParsePrefix(prefixStr)
	if err != nil && r.err == nil {
		return model.PrefixEntry{}, fmt.Errorf("wire: invalid prefix %q: %w", prefixStr, err)
	}
	pe.Prefix = prefix
	pe.Type = model.PrefixType(r.u8())
	pe.ForwardingType = model.ForwardingType(r.u8())
	pe.ForwardingAlgorithm = model.ForwardingAlgorithm(r.u8())
	pe.Metrics.PathPreference = u32ToInt32(r.u32())
	pe.Metrics.SourcePreference = u32ToInt32(r.u32())
	pe.Metrics.Distance = u32ToInt32(r.u32())

	nt := r.u32()
	if nt > 0 {
		pe.Tags = make(map[string]struct{}, nt)
		for i := uint32(0); i < nt; i++ {
			pe.Tags[r.str()] = struct{}{}
		}
	}
	na := r.u32()
	pe.AreaStack = make([]string, 0, na)
	for i := uint32(0); i < na; i++ {
		pe.AreaStack = append(pe.AreaStack, r.str())
	}
	if r.u8() == 1 {
		v := int(r.u32())
		pe.MinNexthop = &v
	}
	if r.err != nil {
		return model.PrefixEntry{}, r.err
	}
	return pe, nil
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func int32ToU32(v int32) uint32 { return uint32(v) }
func u32ToInt32(v uint32) int32 { return int32(v) }
