package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

func TestWireConstants(t *testing.T) {
	if EndOfKeyGroupMark != 0xFFFF {
		t.Fatalf("EndOfKeyGroupMark = %#x, want 0xFFFF", EndOfKeyGroupMark)
	}
	if MetaFlagMask != 0x80 {
		t.Fatalf("MetaFlagMask = %#x, want 0x80", MetaFlagMask)
	}

	expectedKey := []byte{42, 42}
	modKey := append([]byte(nil), expectedKey...)

	if HasMetaFollowsFlag(modKey) {
		t.Fatalf("fresh key reports flag set")
	}
	SetMetaFollowsFlag(modKey)
	if !HasMetaFollowsFlag(modKey) {
		t.Fatalf("flag not set after SetMetaFollowsFlag")
	}
	ClearMetaFollowsFlag(modKey)
	if HasMetaFollowsFlag(modKey) {
		t.Fatalf("flag still set after ClearMetaFollowsFlag")
	}
	if !bytes.Equal(expectedKey, modKey) {
		t.Fatalf("set+clear modified key: %v, want %v", modKey, expectedKey)
	}
}

func TestFlagInvolution(t *testing.T) {
	keys := [][]byte{
		{0x00},
		{0x01},
		{0x7F},
		{0x00, 0xFF, 0x80},
		[]byte("count"),
		{0x42, 0x42, 0x42, 0x42},
	}

	for _, key := range keys {
		t.Run(fmt.Sprintf("%x", key), func(t *testing.T) {
			orig := append([]byte(nil), key...)

			if HasMetaFollowsFlag(key) {
				t.Fatalf("unflagged key %x reports flag", key)
			}
			SetMetaFollowsFlag(key)
			if !HasMetaFollowsFlag(key) {
				t.Fatalf("flag missing after set")
			}
			ClearMetaFollowsFlag(key)
			if !bytes.Equal(key, orig) {
				t.Fatalf("clear(set(b)) = %x, want %x", key, orig)
			}
		})
	}
}

func TestRoundTripMultiGroup(t *testing.T) {
	rng := keygroup.Range{Start: 0, End: 4}

	metas := []domain.StateMetaInfo{
		{ID: 0, Name: "count", KeySerializer: "bytes", NamespaceSerializer: "void", ValueSerializer: "bytes"},
		{ID: 1, Name: "window", KeySerializer: "bytes", NamespaceSerializer: "bytes", ValueSerializer: "bytes"},
	}

	entries := []*domain.StateEntry{
		{StateID: 0, KeyGroup: 0, Key: []byte("a"), Namespace: nil, Value: []byte("1")},
		{StateID: 0, KeyGroup: 0, Key: []byte("b"), Namespace: nil, Value: []byte("2")},
		{StateID: 1, KeyGroup: 0, Key: []byte("a"), Namespace: []byte("w1"), Value: []byte("x")},
		// Group 1 empty.
		{StateID: 0, KeyGroup: 2, Key: []byte("c"), Namespace: nil, Value: []byte("3")},
		{StateID: 1, KeyGroup: 2, Key: []byte("d"), Namespace: []byte("w2"), Value: []byte("y")},
		// Groups 3 and 4 empty.
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, rng)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i, e := range entries {
		if err := w.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry %d: %v", i, err)
		}
	}
	if err := w.Finish(metas); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if w.EntriesWritten() != int64(len(entries)) {
		t.Fatalf("EntriesWritten = %d, want %d", w.EntriesWritten(), len(entries))
	}

	groups, gotMetas, err := ReadAll(bytes.NewReader(buf.Bytes()), rng)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(gotMetas) != len(metas) {
		t.Fatalf("metadata count = %d, want %d", len(gotMetas), len(metas))
	}
	for i := range metas {
		if gotMetas[i] != metas[i] {
			t.Fatalf("metadata[%d] = %+v, want %+v", i, gotMetas[i], metas[i])
		}
	}

	wantByGroup := map[int][]*domain.StateEntry{}
	for _, e := range entries {
		wantByGroup[e.KeyGroup] = append(wantByGroup[e.KeyGroup], e)
	}
	for g := rng.Start; g <= rng.End; g++ {
		want := wantByGroup[g]
		got := groups[g]
		if len(got) != len(want) {
			t.Fatalf("group %d: %d entries, want %d", g, len(got), len(want))
		}
		for i := range want {
			if got[i].StateID != want[i].StateID ||
				!bytes.Equal(got[i].Key, want[i].Key) ||
				!bytes.Equal(got[i].Namespace, want[i].Namespace) ||
				!bytes.Equal(got[i].Value, want[i].Value) {
				t.Fatalf("group %d entry %d = %+v, want %+v", g, i, got[i], want[i])
			}
			if HasMetaFollowsFlag(got[i].Key) {
				t.Fatalf("decoded key still flagged: %x", got[i].Key)
			}
		}
	}
}

// TestSingleGroupScenario is the canonical single-state scenario: state
// "count" over range [0, 0] with two entries, terminated by 0xFFFF.
func TestSingleGroupScenario(t *testing.T) {
	rng := keygroup.Range{Start: 0, End: 0}
	metas := []domain.StateMetaInfo{
		{ID: 0, Name: "count", KeySerializer: "string", NamespaceSerializer: "void", ValueSerializer: "string"},
	}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, rng)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}} {
		e := &domain.StateEntry{StateID: 0, KeyGroup: 0, Key: []byte(kv[0]), Value: []byte(kv[1])}
		if err := w.WriteEntry(e); err != nil {
			t.Fatalf("WriteEntry(%q): %v", kv[0], err)
		}
	}
	if err := w.Finish(metas); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	raw := buf.Bytes()

	// Block starts with the 4-byte group index.
	if got := binary.BigEndian.Uint32(raw[:4]); got != 0 {
		t.Fatalf("group index = %d, want 0", got)
	}
	// First entry is flagged and carries the state id record.
	if got := binary.BigEndian.Uint16(raw[4:6]); got != 1 {
		t.Fatalf("key length = %d, want 1", got)
	}
	if raw[6] != 'a'|MetaFlagMask {
		t.Fatalf("first key byte = %#x, want flagged 'a'", raw[6])
	}

	groups, _, err := ReadAll(bytes.NewReader(raw), rng)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	got := groups[0]
	if len(got) != 2 {
		t.Fatalf("group 0: %d entries, want 2", len(got))
	}
	if string(got[0].Key) != "a" || string(got[0].Value) != "1" {
		t.Fatalf("entry 0 = %q->%q, want a->1", got[0].Key, got[0].Value)
	}
	if string(got[1].Key) != "b" || string(got[1].Value) != "2" {
		t.Fatalf("entry 1 = %q->%q, want b->2", got[1].Key, got[1].Value)
	}

	// The group block ends with the end-of-key-group mark before the
	// metadata block (count uint32 follows it).
	// Layout: idx(4) e1(2+1+2+4+4+1) e2(2+1+4+4+1) mark(2) ...
	markOff := 4 + (2 + 1 + 2 + 4 + 0 + 4 + 1) + (2 + 1 + 4 + 0 + 4 + 1)
	if got := binary.BigEndian.Uint16(raw[markOff : markOff+2]); got != EndOfKeyGroupMark {
		t.Fatalf("terminator = %#x, want %#x", got, EndOfKeyGroupMark)
	}
}

func TestEmptyRangeEncoding(t *testing.T) {
	rng := keygroup.Range{Start: 3, End: 5}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, rng)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.Finish(nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	groups, metas, err := ReadAll(bytes.NewReader(buf.Bytes()), rng)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	for g := 3; g <= 5; g++ {
		if len(groups[g]) != 0 {
			t.Fatalf("group %d not empty", g)
		}
	}
	if len(metas) != 0 {
		t.Fatalf("metadata = %v, want empty", metas)
	}
}

func TestWriterRejectsBadKeys(t *testing.T) {
	w, err := NewWriter(io.Discard, keygroup.Range{Start: 0, End: 0})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	empty := &domain.StateEntry{StateID: 0, KeyGroup: 0, Key: nil, Value: []byte("v")}
	if err := w.WriteEntry(empty); !errors.Is(err, ErrKeyLength) {
		t.Fatalf("empty key: err = %v, want ErrKeyLength", err)
	}

	flagged := &domain.StateEntry{StateID: 0, KeyGroup: 0, Key: []byte{0x81}, Value: []byte("v")}
	if err := w.WriteEntry(flagged); !errors.Is(err, ErrKeyFlagged) {
		t.Fatalf("flagged key: err = %v, want ErrKeyFlagged", err)
	}
}

func TestWriterRejectsGroupRegression(t *testing.T) {
	w, err := NewWriter(io.Discard, keygroup.Range{Start: 0, End: 7})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	if err := w.WriteEntry(&domain.StateEntry{KeyGroup: 5, Key: []byte("k"), Value: []byte("v")}); err != nil {
		t.Fatalf("WriteEntry(5): %v", err)
	}
	if err := w.WriteEntry(&domain.StateEntry{KeyGroup: 2, Key: []byte("k"), Value: []byte("v")}); !errors.Is(err, ErrGroupOrder) {
		t.Fatalf("regressing group: err = %v, want ErrGroupOrder", err)
	}
	if err := w.WriteEntry(&domain.StateEntry{KeyGroup: 9, Key: []byte("k"), Value: []byte("v")}); !errors.Is(err, ErrGroupOrder) {
		t.Fatalf("out-of-range group: err = %v, want ErrGroupOrder", err)
	}
}

func TestTerminatorIndexReserved(t *testing.T) {
	// A range reaching the terminator value cannot be constructed, so no
	// encoder can ever need 0xFFFF as a block index.
	if _, err := NewWriter(io.Discard, keygroup.Range{Start: 0, End: 0xFFFF}); err == nil {
		t.Fatalf("NewWriter accepted range ending at the terminator value")
	}
	if _, err := NewReader(bytes.NewReader(nil), keygroup.Range{Start: 0xFFFF, End: 0xFFFF}); err == nil {
		t.Fatalf("NewReader accepted range at the terminator value")
	}
}

func TestReaderRequiresLeadingStateID(t *testing.T) {
	// Handcraft a block whose first entry is not flagged.
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(0))   // group index
	binary.Write(&buf, binary.BigEndian, uint16(1))   // key length
	buf.WriteByte('a')                                // unflagged key
	binary.Write(&buf, binary.BigEndian, uint32(0))   // namespace length
	binary.Write(&buf, binary.BigEndian, uint32(1))   // value length
	buf.WriteByte('1')

	r, err := NewReader(bytes.NewReader(buf.Bytes()), keygroup.Range{Start: 0, End: 0})
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrMissingStateID) {
		t.Fatalf("err = %v, want ErrMissingStateID", err)
	}
}

func TestReaderDetectsTruncation(t *testing.T) {
	rng := keygroup.Range{Start: 0, End: 1}
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, rng)
	if err := w.WriteEntry(&domain.StateEntry{KeyGroup: 0, Key: []byte("key"), Value: []byte("value")}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.Finish(nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	raw := buf.Bytes()
	for _, cut := range []int{1, 5, len(raw) / 2, len(raw) - 1} {
		if _, _, err := ReadAll(bytes.NewReader(raw[:cut]), rng); !errors.Is(err, ErrCorruptStream) {
			t.Fatalf("cut at %d: err = %v, want ErrCorruptStream", cut, err)
		}
	}
}

func TestStateIDCarriesAcrossGroups(t *testing.T) {
	rng := keygroup.Range{Start: 0, End: 1}

	var buf bytes.Buffer
	w, _ := NewWriter(&buf, rng)
	if err := w.WriteEntry(&domain.StateEntry{StateID: 3, KeyGroup: 0, Key: []byte("a"), Value: []byte("1")}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.WriteEntry(&domain.StateEntry{StateID: 3, KeyGroup: 1, Key: []byte("b"), Value: []byte("2")}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := w.Finish(nil); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	groups, _, err := ReadAll(bytes.NewReader(buf.Bytes()), rng)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if groups[1][0].StateID != 3 {
		t.Fatalf("state id in group 1 = %d, want 3", groups[1][0].StateID)
	}
	// Only the very first entry should carry the metadata record: the
	// second entry's key byte on the wire must be unflagged.
	count := 0
	for _, b := range buf.Bytes() {
		if b == 'b'|MetaFlagMask {
			count++
		}
	}
	if count != 0 {
		t.Fatalf("second entry unexpectedly flagged")
	}
}
