// Package memory provides a persistent knowledge store for agent memory.
//
// Text is saved with tags, a free-form context object and a vector
// embedding, and found again by ID, by substring or by cosine similarity.
// Identical content (ignoring case and surrounding whitespace) is stored
// once.
//
// Architecture:
//   - RecordStore: durable storage (SQLite by default, PostgreSQL optional)
//   - Embedder: text-to-vector conversion (OpenAI-compatible API or local
//     ONNX model, always behind the deterministic fallback)
//   - KeyValueCache: TTL cache in front of hot reads (ristretto or Redis)
//   - Manager: the operations callers use
//
// Caching:
//   - memory:<id> holds a lightweight projection written on every store
//   - record:<id> is the read-through copy used by Retrieve
//   - stats:* holds session listings and analyses; any write evicts them
//
// Semantic search is a linear scan over every embedded record in scope.
// That is fine up to tens of thousands of records.
//
// The setup package wires everything from a YAML file and environment.
package memory
