// Package types defines the schema model (models, fields, relations),
// records, the Store and Backend interfaces implemented by persistence
// gateways, and the standard error values for recopy.
//
// A Model is an ordered list of field descriptors. Stored fields hold
// values; computed fields are derived on read from a formula over the
// record's own fields; aggregate fields are derived from the children of
// a has-many relation. Two models may define a field with the same name
// and different formulas, and each evaluates its own.
package types
