package main

// Payload is the demo work-item body. A real caller substitutes its own type
// for the queue.Repository type parameter; package queue never inspects this
// shape (spec §1 "codec/serialization machinery for user payload types" is an
// external collaborator, out of scope for the core).
type Payload struct {
	Kind string                 `bson:"kind"`
	Data map[string]interface{} `bson:"data"`
}
