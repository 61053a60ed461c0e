package header

import (
	"time"

	"github.com/fxamacker/cbor/v2"
)

// wireHeader is the on-disk form. Keys are small integers so records stay
// compact; pointer fields are omitted when absent. Keys 1-3 are always
// present. Decoders ignore keys they do not know.
type wireHeader struct {
	Size  *int64  `cbor:"4,keyasint,omitempty"`
	Mode  *uint32 `cbor:"5,keyasint,omitempty"`
	UID   *uint32 `cbor:"6,keyasint,omitempty"`
	GID   *uint32 `cbor:"7,keyasint,omitempty"`
	MTime *int64  `cbor:"8,keyasint,omitempty"`
	CTime *int64  `cbor:"9,keyasint,omitempty"`
	ATime *int64  `cbor:"10,keyasint,omitempty"`
	Link  *string `cbor:"11,keyasint,omitempty"`
	Path  string  `cbor:"2,keyasint"`
	Hash  []byte  `cbor:"12,keyasint,omitempty"`
	Data  int64   `cbor:"3,keyasint"`
	Type  uint8   `cbor:"1,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Core deterministic encoding: identical headers produce identical bytes.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("header: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:  4,
		MaxMapPairs:      256,
		MaxArrayElements: 256,
	}.DecMode()
	if err != nil {
		panic("header: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes h, writing only the fields in keys plus the required ones.
// Link targets are always written for link types.
func Marshal(h *Header, keys FieldKeySet) ([]byte, error) {
	keys |= RequiredKeys
	w := wireHeader{
		Type: uint8(h.Type),
		Path: h.Path,
		Data: h.DataLen,
	}
	if keys.Has(KeySIZ) {
		w.Size = &h.Size
	}
	if keys.Has(KeyMOD) {
		w.Mode = &h.Mode
	}
	if keys.Has(KeyUID) {
		w.UID = &h.UID
	}
	if keys.Has(KeyGID) {
		w.GID = &h.GID
	}
	if keys.Has(KeyMTM) {
		w.MTime = unixNano(h.ModTime)
	}
	if keys.Has(KeyCTM) {
		w.CTime = unixNano(h.ChangeTime)
	}
	if keys.Has(KeyATM) {
		w.ATime = unixNano(h.AccessTime)
	}
	if h.Type.IsLink() || (keys.Has(KeyLNK) && h.LinkTarget != "") {
		w.Link = &h.LinkTarget
	}
	if keys.Has(KeyHSH) && len(h.Checksum) > 0 {
		w.Hash = h.Checksum
	}
	return encMode.Marshal(&w)
}

// Unmarshal decodes a header. Unknown keys are skipped.
func Unmarshal(data []byte) (*Header, error) {
	var w wireHeader
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	h := &Header{
		Type:    Type(w.Type),
		Path:    w.Path,
		DataLen: w.Data,
		Present: RequiredKeys,
	}
	if w.Size != nil {
		h.Size = *w.Size
		h.Present |= 1 << KeySIZ
	}
	if w.Mode != nil {
		h.Mode = *w.Mode
		h.Present |= 1 << KeyMOD
	}
	if w.UID != nil {
		h.UID = *w.UID
		h.Present |= 1 << KeyUID
	}
	if w.GID != nil {
		h.GID = *w.GID
		h.Present |= 1 << KeyGID
	}
	if w.MTime != nil {
		h.ModTime = time.Unix(0, *w.MTime)
		h.Present |= 1 << KeyMTM
	}
	if w.CTime != nil {
		h.ChangeTime = time.Unix(0, *w.CTime)
		h.Present |= 1 << KeyCTM
	}
	if w.ATime != nil {
		h.AccessTime = time.Unix(0, *w.ATime)
		h.Present |= 1 << KeyATM
	}
	if w.Link != nil {
		h.LinkTarget = *w.Link
		h.Present |= 1 << KeyLNK
	}
	if len(w.Hash) > 0 {
		h.Checksum = w.Hash
		h.Present |= 1 << KeyHSH
	}
	return h, nil
}

func unixNano(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	n := t.UnixNano()
	return &n
}
