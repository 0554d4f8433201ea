// Package schema provides the value-shape validators used by widget kinds.
//
// A Type checks that a widget value has a storable shape: JSON-like scalars,
// lists and records, or raw bytes for binary payloads. Values that carry host
// objects such as functions or channels are rejected, which is how the merger
// detects non-serializable handler output.
//
// Basic usage:
//
//	s := schema.Schema{
//	    "title":    schema.String(),
//	    "count":    schema.Number(),
//	    "tags":     schema.List(schema.String()),
//	}
//	err := schema.Validate(s, values)
package schema
