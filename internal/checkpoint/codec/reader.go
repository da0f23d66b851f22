package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/yndnr/streammesh-go/internal/core/domain"
	"github.com/yndnr/streammesh-go/pkg/keygroup"
)

// Reader decodes a snapshot stream produced by Writer.
//
// Next returns entries in stream order (ascending key group, original
// per-group order) and io.EOF after the last entry, at which point the
// trailing metadata block has been consumed and Metadata is available.
type Reader struct {
	src io.Reader
	rng keygroup.Range

	// nextGroup is the group index expected at the next block start.
	nextGroup int
	groupOpen bool

	// curStateID is the owning state carried forward between metadata
	// records, or -1 before the first record.
	curStateID int

	metas   []domain.StateMetaInfo
	done    bool
	scratch [4]byte
}

// NewReader creates a codec reader for the given key-group range.
func NewReader(src io.Reader, rng keygroup.Range) (*Reader, error) {
	if _, err := keygroup.NewRange(rng.Start, rng.End); err != nil {
		return nil, err
	}
	return &Reader{
		src:        src,
		rng:        rng,
		nextGroup:  rng.Start,
		curStateID: -1,
	}, nil
}

// Next returns the next decoded entry, or io.EOF when the stream is
// exhausted. The returned key has the metadata-follows flag cleared.
func (r *Reader) Next() (*domain.StateEntry, error) {
	if r.done {
		return nil, io.EOF
	}

	for {
		if !r.groupOpen {
			if r.nextGroup > r.rng.End {
				if err := r.readMetadata(); err != nil {
					return nil, err
				}
				r.done = true
				return nil, io.EOF
			}
			idx, err := r.readUint32()
			if err != nil {
				return nil, corrupt(err)
			}
			if int(idx) != r.nextGroup {
				return nil, fmt.Errorf("%w: block index %d, want %d", ErrCorruptStream, idx, r.nextGroup)
			}
			r.groupOpen = true
		}

		lenOrMark, err := r.readUint16()
		if err != nil {
			return nil, corrupt(err)
		}
		if lenOrMark == EndOfKeyGroupMark {
			r.groupOpen = false
			r.nextGroup++
			continue
		}

		keyLen := int(lenOrMark)
		if keyLen < MinKeyLength {
			return nil, fmt.Errorf("%w: key length %d", ErrCorruptStream, keyLen)
		}

		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r.src, key); err != nil {
			return nil, corrupt(err)
		}

		if HasMetaFollowsFlag(key) {
			stateID, err := r.readUint16()
			if err != nil {
				return nil, corrupt(err)
			}
			r.curStateID = int(stateID)
			ClearMetaFollowsFlag(key)
		} else if r.curStateID < 0 {
			return nil, ErrMissingStateID
		}

		ns, err := r.readBytes32()
		if err != nil {
			return nil, corrupt(err)
		}
		value, err := r.readBytes32()
		if err != nil {
			return nil, corrupt(err)
		}

		return &domain.StateEntry{
			StateID:   r.curStateID,
			KeyGroup:  r.nextGroup - 1,
			Key:       key,
			Namespace: ns,
			Value:     value,
		}, nil
	}
}

// Metadata returns the state meta infos read from the metadata block.
// Valid only after Next has returned io.EOF.
func (r *Reader) Metadata() []domain.StateMetaInfo {
	return r.metas
}

// ReadAll drains the stream and returns entries grouped by key group,
// plus the metadata block.
func ReadAll(src io.Reader, rng keygroup.Range) (map[int][]*domain.StateEntry, []domain.StateMetaInfo, error) {
	r, err := NewReader(src, rng)
	if err != nil {
		return nil, nil, err
	}

	groups := make(map[int][]*domain.StateEntry)
	for {
		e, err := r.Next()
		if err == io.EOF {
			return groups, r.Metadata(), nil
		}
		if err != nil {
			return nil, nil, err
		}
		groups[e.KeyGroup] = append(groups[e.KeyGroup], e)
	}
}

func (r *Reader) readMetadata() error {
	count, err := r.readUint32()
	if err != nil {
		return corrupt(err)
	}
	metas := make([]domain.StateMetaInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		id, err := r.readUint16()
		if err != nil {
			return corrupt(err)
		}
		name, err := r.readString16()
		if err != nil {
			return corrupt(err)
		}
		keySer, err := r.readString16()
		if err != nil {
			return corrupt(err)
		}
		nsSer, err := r.readString16()
		if err != nil {
			return corrupt(err)
		}
		valSer, err := r.readString16()
		if err != nil {
			return corrupt(err)
		}
		metas = append(metas, domain.StateMetaInfo{
			ID:                  int(id),
			Name:                name,
			KeySerializer:       keySer,
			NamespaceSerializer: nsSer,
			ValueSerializer:     valSer,
		})
	}
	r.metas = metas
	return nil
}

func (r *Reader) readUint16() (uint16, error) {
	if _, err := io.ReadFull(r.src, r.scratch[:2]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(r.scratch[:2]), nil
}

func (r *Reader) readUint32() (uint32, error) {
	if _, err := io.ReadFull(r.src, r.scratch[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(r.scratch[:4]), nil
}

func (r *Reader) readBytes32() ([]byte, error) {
	n, err := r.readUint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.src, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *Reader) readString16() (string, error) {
	n, err := r.readUint16()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.src, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func corrupt(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: truncated stream", ErrCorruptStream)
	}
	return err
}
