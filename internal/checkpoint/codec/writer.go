package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

// Writer encodes state entries into the snapshot wire format.
//
// Entries must be appended in ascending key-group order; within a key
// group the caller's order is preserved. The writer owns group
// transitions: it opens blocks, emits terminators for skipped (empty)
// groups and sets the metadata-follows flag whenever the owning state
// changes relative to the previously written entry.
type Writer struct {
	dst io.Writer
	rng keygroup.Range

	// nextGroup is the first group index not yet opened.
	nextGroup int
	groupOpen bool

	// lastStateID is the state id of the previously written entry, or -1
	// before the first entry.
	lastStateID int

	entries int64
	scratch [4]byte
	keyBuf  []byte
}

// NewWriter creates a codec writer targeting the given key-group range.
func NewWriter(dst io.Writer, rng keygroup.Range) (*Writer, error) {
	if _, err := keygroup.NewRange(rng.Start, rng.End); err != nil {
		return nil, err
	}
	return &Writer{
		dst:         dst,
		rng:         rng,
		nextGroup:   rng.Start,
		lastStateID: -1,
	}, nil
}

// WriteEntry appends one entry to the stream.
func (w *Writer) WriteEntry(e *domain.StateEntry) error {
	if len(e.Key) < MinKeyLength || len(e.Key) > MaxKeyLength {
		return fmt.Errorf("%w: %d", ErrKeyLength, len(e.Key))
	}
	if HasMetaFollowsFlag(e.Key) {
		return ErrKeyFlagged
	}
	if !w.rng.Contains(e.KeyGroup) {
		return fmt.Errorf("%w: group %d outside %v", ErrGroupOrder, e.KeyGroup, w.rng)
	}

	if err := w.advanceTo(e.KeyGroup); err != nil {
		return err
	}

	metaFollows := e.StateID != w.lastStateID

	if err := w.writeUint16(uint16(len(e.Key))); err != nil {
		return err
	}

	// The flag is set on a copy so the caller's bytes stay untouched.
	w.keyBuf = append(w.keyBuf[:0], e.Key...)
	if metaFollows {
		SetMetaFollowsFlag(w.keyBuf)
	}
	if _, err := w.dst.Write(w.keyBuf); err != nil {
		return err
	}

	if metaFollows {
		if err := w.writeUint16(uint16(e.StateID)); err != nil {
			return err
		}
		w.lastStateID = e.StateID
	}

	if err := w.writeBytes32(e.Namespace); err != nil {
		return err
	}
	if err := w.writeBytes32(e.Value); err != nil {
		return err
	}

	w.entries++
	return nil
}

// Finish terminates the last open group, emits blocks for any remaining
// empty groups and writes the metadata block. The writer must not be
// used afterwards.
func (w *Writer) Finish(metas []domain.StateMetaInfo) error {
	// Close out all remaining groups, including trailing empty ones.
	if err := w.advanceTo(w.rng.End); err != nil {
		return err
	}
	if err := w.closeGroup(); err != nil {
		return err
	}

	if err := w.writeUint32(uint32(len(metas))); err != nil {
		return err
	}
	for i := range metas {
		m := &metas[i]
		if err := w.writeUint16(uint16(m.ID)); err != nil {
			return err
		}
		if err := w.writeString16(m.Name); err != nil {
			return err
		}
		if err := w.writeString16(m.KeySerializer); err != nil {
			return err
		}
		if err := w.writeString16(m.NamespaceSerializer); err != nil {
			return err
		}
		if err := w.writeString16(m.ValueSerializer); err != nil {
			return err
		}
	}
	return nil
}

// EntriesWritten returns the number of entries appended so far.
func (w *Writer) EntriesWritten() int64 {
	return w.entries
}

// advanceTo opens the block for the given group, closing the current one
// and materializing empty blocks for any groups skipped in between.
func (w *Writer) advanceTo(group int) error {
	if w.groupOpen && group == w.nextGroup-1 {
		return nil // still in the current group
	}
	if group < w.nextGroup {
		return fmt.Errorf("%w: group %d after %d", ErrGroupOrder, group, w.nextGroup-1)
	}

	if err := w.closeGroup(); err != nil {
		return err
	}
	for w.nextGroup <= group {
		if err := w.writeUint32(uint32(w.nextGroup)); err != nil {
			return err
		}
		w.nextGroup++
		if w.nextGroup <= group {
			// Skipped group: block is just index + terminator.
			if err := w.writeUint16(EndOfKeyGroupMark); err != nil {
				return err
			}
		}
	}
	w.groupOpen = true
	return nil
}

func (w *Writer) closeGroup() error {
	if !w.groupOpen {
		return nil
	}
	w.groupOpen = false
	return w.writeUint16(EndOfKeyGroupMark)
}

func (w *Writer) writeUint16(v uint16) error {
	binary.BigEndian.PutUint16(w.scratch[:2], v)
	_, err := w.dst.Write(w.scratch[:2])
	return err
}

func (w *Writer) writeUint32(v uint32) error {
	binary.BigEndian.PutUint32(w.scratch[:4], v)
	_, err := w.dst.Write(w.scratch[:4])
	return err
}

func (w *Writer) writeBytes32(b []byte) error {
	if err := w.writeUint32(uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.dst.Write(b)
	return err
}

func (w *Writer) writeString16(s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("codec: string too long: %d", len(s))
	}
	if err := w.writeUint16(uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w.dst, s)
	return err
}
