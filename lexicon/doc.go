// Package lexicon is the schema registry of the lanyards record layer.
//
// A [Descriptor] describes one revision of a collection's record shape. A
// [Registry] indexes descriptors by collection and revision; it is built once
// from static schema sources at process start and is read-only afterwards.
//
// # Revisions
//
// Several revisions of one collection may be registered at the same time.
// [Registry.Resolve] returns the highest (active) revision and is what writers
// validate against. Readers pass the revision recorded with a stored record to
// [Registry.ResolveVersion] so that records written under an older schema stay
// readable after the schema evolves.
//
// # Validation
//
// Validation is structural and pure: required fields, value types, string
// length and format constraints, enumerations and integer bounds. It returns
// the normalized payload (NFC strings, int64 integers, []any arrays) or a
// [*ValidationError] listing every violation.
//
// # Sources
//
// Schemas are written in CUE or YAML:
//
//	lexicon: {
//	    id:       "app.lanyards.actor.biography.link"
//	    revision: 1
//	    key:      "tid"
//	    record: {
//	        type:     "object"
//	        required: ["url"]
//	        properties: url: {type: "string", format: "uri"}
//	    }
//	}
package lexicon
