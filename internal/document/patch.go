package document

import (
	xerrors "github.com/kartikbazzad/xlimdb/internal/errors"
)

// PatchOp is one field-level mutation applied by the PATCH command, an
// ordered alternative to resending a whole document for UPDATE.
type PatchOp struct {
	Op    string      `json:"op"` // "set" or "remove"
	Field string      `json:"field"`
	Value interface{} `json:"value,omitempty"`
}

// ApplyPatch applies ops to d.Data in order and bumps UpdatedAt once.
func (d *Document) ApplyPatch(ops []PatchOp) error {
	for _, op := range ops {
		switch op.Op {
		case "set":
			d.Data.Set(op.Field, op.Value)
		case "remove":
			d.Data.Remove(op.Field)
		default:
			return xerrors.WrapKind(xerrors.KindInvalidOperation, "unknown patch op "+op.Op, xerrors.ErrInvalidOperation)
		}
	}
	d.Touch()
	return nil
}
