package types

import (
	"context"
	"fmt"
)

// ChildLoader returns the records on the many side of rel for parent.
type ChildLoader func(ctx context.Context, parent *Record, rel *Relation) ([]*Record, error)

// Derive recomputes the derived fields of rec in declaration order, so a
// computed field may read any field declared before it. Aggregates load
// children through children; it may be nil for models without aggregates.
func Derive(ctx context.Context, rec *Record, children ChildLoader) error {
	m := rec.Model
	for _, f := range m.Fields {
		var (
			v   any
			err error
		)
		switch f.Kind {
		case FieldAggregate:
			v, err = aggregate(ctx, rec, f, children)
		case FieldComputed:
			v, err = compute(rec, f)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("derive %s.%s: %w", m.Name, f.Name, err)
		}
		if v != nil {
			if v, err = f.Coerce(v); err != nil {
				return fmt.Errorf("derive %s.%s: %w", m.Name, f.Name, err)
			}
		}
		rec.setDerived(f.Name, v)
	}
	return nil
}

func compute(rec *Record, f *Field) (any, error) {
	eval := f.eval
	if eval == nil {
		eval = f.Func
	}
	if eval == nil {
		return nil, fmt.Errorf("%w: field %q is not compiled", ErrInvalidModel, f.Name)
	}
	return eval(rec.Map())
}

func aggregate(ctx context.Context, rec *Record, f *Field, children ChildLoader) (any, error) {
	a := f.Aggregate
	rel, ok := rec.Model.Relation(a.Relation)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelation, rec.Model.Name, a.Relation)
	}
	if children == nil {
		return nil, fmt.Errorf("no child loader for %s", rel.Name)
	}
	kids, err := children(ctx, rec, rel)
	if err != nil {
		return nil, err
	}
	if a.Func == AggregateCount {
		return int64(len(kids)), nil
	}

	var (
		acc float64
		n   int
	)
	for _, kid := range kids {
		x, ok := AsFloat(kid.Get(a.Field))
		if !ok {
			continue
		}
		switch {
		case n == 0:
			acc = x
		case a.Func == AggregateSum, a.Func == AggregateAvg:
			acc += x
		case a.Func == AggregateMin:
			acc = min(acc, x)
		case a.Func == AggregateMax:
			acc = max(acc, x)
		}
		n++
	}
	switch {
	case n == 0 && (a.Func == AggregateMin || a.Func == AggregateMax || a.Func == AggregateAvg):
		return nil, nil
	case a.Func == AggregateAvg:
		return acc / float64(n), nil
	default:
		return acc, nil
	}
}
