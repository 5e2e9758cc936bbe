// Package deepcopy copies a record together with the records related to
// it into other models.
//
// A Session binds a source record, a destination model and the relations
// to follow:
//
//	s := deepcopy.NewSession(store)
//	invoice, err := s.From(quote).To(invoiceModel).With("Lines").Copy(ctx)
//
// Each visited source record is mapped field by field onto a destination
// record of the matching model. Fields are matched by name unless aliased,
// may be transformed or overridden, and are coerced to the destination
// field's type. Computed and aggregate fields are never copied; the
// destination model derives them, so the returned record shows totals as
// the destination defines them.
//
// The session remembers every destination record it wrote, keyed by the
// relation path and the source record's ID. Copying the same source again
// updates those records instead of creating new ones. Binding a different
// source or destination model starts over.
//
// A Copy is all or nothing when the store implements types.Transactor.
// Either way, a failed Copy leaves the session as it was.
package deepcopy
