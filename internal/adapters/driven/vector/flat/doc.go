// Package flat provides an exact inner-product vector index.
//
// Vectors live in one contiguous float32 slice addressed by slot number.
// Slots are assigned sequentially and never reused; deleting a chunk only
// removes its mapping and marks the slot stale until the next Rebuild.
// Scores are cosine similarities computed with viant/vec, which for the
// L2-normalised vectors the index holds equal the inner product.
//
// The index is held in memory and persisted as a single snapshot file,
// see snapshot.go for the format.
package flat
