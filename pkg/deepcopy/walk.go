package deepcopy

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

// write is a record write made by a walk, reported to metrics only once
// the walk commits.
type write struct {
	op    string
	model string
}

// walker copies one plan inside one atomic unit. Its identity map starts
// as a clone of the session's and replaces it only on success.
type walker struct {
	st      types.Store
	ids     map[string]int64
	written map[string]bool // identity keys written by this walk
	writes  []write
	logger  *zap.Logger
}

type parentLink struct {
	field string
	id    int64
}

func identityKey(n *node, srcID int64) string {
	return n.path + "#" + strconv.FormatInt(srcID, 10)
}

// copyNode writes the destination record for src and its planned
// relations, and returns the destination ID. Has-one targets are written
// first so their IDs can fill the owner's link fields; has-many children
// are written after the owner so they can reference its ID. A record
// reached twice in one walk, such as a product shared by two lines, is
// written once.
func (w *walker) copyNode(ctx context.Context, n *node, src *types.Record, link *parentLink) (int64, error) {
	key := identityKey(n, src.ID)
	if w.written[key] {
		return w.ids[key], nil
	}
	dst, err := w.destination(ctx, n, key)
	if err != nil {
		return 0, err
	}

	for _, c := range n.hasOne {
		targets, err := w.st.Children(ctx, src, c.srcRel)
		if err != nil {
			return 0, persistence("load", c.src.Name, err)
		}
		var ref any
		if len(targets) > 0 {
			id, err := w.copyNode(ctx, c, targets[0], nil)
			if err != nil {
				return 0, err
			}
			ref = id
		}
		if err := dst.Set(c.dstRel.LinkField, ref); err != nil {
			return 0, err
		}
	}

	if err := mapFields(n.fields, src, dst, n.skip); err != nil {
		return 0, err
	}
	if link != nil {
		if err := dst.Set(link.field, link.id); err != nil {
			return 0, err
		}
	}

	op := "update"
	if dst.Loaded() {
		if err := w.st.Update(ctx, dst); err != nil {
			return 0, persistence(op, n.dst.Name, err)
		}
	} else {
		op = "insert"
		if _, err := w.st.Insert(ctx, dst); err != nil {
			return 0, persistence(op, n.dst.Name, err)
		}
	}
	w.ids[key] = dst.ID
	w.written[key] = true
	w.writes = append(w.writes, write{op: op, model: n.dst.Name})
	w.logger.Debug("record copied",
		zap.String("path", n.path),
		zap.String("op", op),
		zap.String("from", src.Model.Name),
		zap.Int64("from_id", src.ID),
		zap.String("to", n.dst.Name),
		zap.Int64("to_id", dst.ID),
	)

	for _, c := range n.hasMany {
		kids, err := w.st.Children(ctx, src, c.srcRel)
		if err != nil {
			return 0, persistence("load", c.src.Name, err)
		}
		for _, kid := range kids {
			if _, err := w.copyNode(ctx, c, kid, &parentLink{field: c.dstRel.LinkField, id: dst.ID}); err != nil {
				return 0, err
			}
		}
	}
	return dst.ID, nil
}

// destination returns the record previously copied under key, or a new
// record if there is none or it no longer exists.
func (w *walker) destination(ctx context.Context, n *node, key string) (*types.Record, error) {
	id, ok := w.ids[key]
	if !ok {
		return n.dst.NewRecord(), nil
	}
	rec, err := w.st.Load(ctx, n.dst, id)
	switch {
	case errors.Is(err, types.ErrNotFound):
		w.logger.Debug("copied record is gone, inserting again",
			zap.String("model", n.dst.Name), zap.Int64("id", id))
		return n.dst.NewRecord(), nil
	case err != nil:
		return nil, persistence("load", n.dst.Name, err)
	}
	return rec, nil
}

// persistence wraps a store error so it matches both ErrPersistenceFailure
// and the underlying error.
func persistence(op, model string, err error) error {
	if errors.Is(err, types.ErrPersistenceFailure) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", types.ErrPersistenceFailure, op, model, err)
}
