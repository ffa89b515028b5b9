// Package record defines the identity types of the lanyards record layer and
// the codec that moves validated payloads to and from the store's canonical
// serialized form.
//
// # Identity
//
// Every stored record is addressed by the tuple ([ActorIdentity],
// [CollectionName], [RecordKey]) and carries a [CommitRef], an opaque token
// for the record's state as of its last successful read or write. Writers
// present the CommitRef they last observed; the store rejects the write when
// the record has moved on.
//
// # Wire form
//
// [Encode] renders a [Payload] as RFC 8785 canonical JSON with two header
// members, "$type" (the collection) and "$rev" (the schema revision the payload
// was validated against):
//
//	{"$rev":1,"$type":"app.lanyards.actor.biography.affiliation","institution":"Acme"}
//
// [Decode] reverses it against a [Schema]. For every payload accepted by
// schema validation, Decode(Encode(p)) equals p.
//
// Floats and nulls are not representable. Strings are NFC normalized.
package record
