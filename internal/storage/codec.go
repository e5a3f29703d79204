package storage

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/kartikbazzad/xlimdb/internal/document"
	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
)

var msgpackHandle codec.MsgpackHandle

// docRecord is the on-disk envelope for a document. Data is kept as its own
// JSON encoding (via document.Object's order-preserving marshaler) rather
// than handed to the msgpack reflection codec directly, since Object's
// fields are unexported for the same reason map[string]interface{} would
// lose field order under reflection-based encoding.
type docRecord struct {
	ID        string
	CreatedAt int64 // UnixNano, UTC
	UpdatedAt int64
	DataJSON  []byte
}

// collRecord is the on-disk envelope for a collection.
type collRecord struct {
	Name        string
	CreatedAt   int64
	UpdatedAt   int64
	MetadataJSON []byte
}

func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, xerrors.WrapKind(xerrors.KindSerialization, "msgpack encode failed", err)
	}
	return buf.Bytes(), nil
}

func decodeMsgpack(data []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewReader(data), &msgpackHandle)
	if err := dec.Decode(v); err != nil {
		return xerrors.WrapKind(xerrors.KindSerialization, "msgpack decode failed", err)
	}
	return nil
}

func encodeDocument(doc *document.Document) ([]byte, error) {
	dataJSON, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, xerrors.WrapKind(xerrors.KindSerialization, "encode document data", err)
	}
	rec := docRecord{
		ID:        doc.ID.String(),
		CreatedAt: doc.CreatedAt.UnixNano(),
		UpdatedAt: doc.UpdatedAt.UnixNano(),
		DataJSON:  dataJSON,
	}
	return encodeMsgpack(rec)
}

func decodeDocument(data []byte) (*document.Document, error) {
	var rec docRecord
	if err := decodeMsgpack(data, &rec); err != nil {
		return nil, err
	}
	obj := document.NewObject()
	if len(rec.DataJSON) > 0 {
		if err := json.Unmarshal(rec.DataJSON, obj); err != nil {
			return nil, xerrors.WrapKind(xerrors.KindSerialization, "decode document data", err)
		}
	}
	doc := document.New()
	if err := doc.ID.UnmarshalText([]byte(rec.ID)); err != nil {
		return nil, xerrors.WrapKind(xerrors.KindSerialization, "decode document id", err)
	}
	doc.CreatedAt = time.Unix(0, rec.CreatedAt).UTC()
	doc.UpdatedAt = time.Unix(0, rec.UpdatedAt).UTC()
	doc.Data = obj
	return doc, nil
}

func encodeCollection(c *document.Collection) ([]byte, error) {
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return nil, xerrors.WrapKind(xerrors.KindSerialization, "encode collection metadata", err)
	}
	rec := collRecord{
		Name:         c.Name,
		CreatedAt:    c.CreatedAt.UnixNano(),
		UpdatedAt:    c.UpdatedAt.UnixNano(),
		MetadataJSON: metaJSON,
	}
	return encodeMsgpack(rec)
}

func decodeCollection(data []byte) (*document.Collection, error) {
	var rec collRecord
	if err := decodeMsgpack(data, &rec); err != nil {
		return nil, err
	}
	meta := document.NewObject()
	if len(rec.MetadataJSON) > 0 {
		if err := json.Unmarshal(rec.MetadataJSON, meta); err != nil {
			return nil, xerrors.WrapKind(xerrors.KindSerialization, "decode collection metadata", err)
		}
	}
	return &document.Collection{
		Name:      rec.Name,
		CreatedAt: time.Unix(0, rec.CreatedAt).UTC(),
		UpdatedAt: time.Unix(0, rec.UpdatedAt).UTC(),
		Metadata:  meta,
	}, nil
}
