// Package memory provides tiered, persistent memory for LLM-driven agents.
//
// Memories are built from named vector stores. Each memory kind keeps one
// default store and may register more under logical names (summaries,
// reflections, non_func, ...), all reached through one retrieve-and-format
// path that differs only in the per-result transform and the envelope tag.
//
// Architecture:
//   - Store: named vector collection with upsert-by-id and k-NN text query
//   - Embedder: text-to-vector conversion used by stores and scorers
//   - Registry: name -> Store, with a Retriever and an Updater per name
//   - Base: the skeleton every memory kind embeds (registry, default store,
//     top-k, ablation switch, logger)
//
// Memory kinds:
//   - episodic: per-episode transition buffer, flushed at episode boundary
//   - procedural: append-only rule list with pluggable scoring, skill library
//   - semantic: summaries, reflections and knowledge sources
//
// Backends:
//   - store/chromem: chromem-go persistent DB under ckpt_dir/<name>/vectordb
//   - embedder/mock, embedder/openai, embedder/onnx, embedder/cache
package memory
