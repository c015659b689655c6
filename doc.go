// Package ragkit is a retrieval-augmented generation toolkit. The root
// package holds no code; importers depend on the subpackages directly:
//
//	import (
//	  "github.com/samzhu/ragkit/chat"     // prompt templates, memory, function calling
//	  "github.com/samzhu/ragkit/document" // documents and chunks
//	  "github.com/samzhu/ragkit/llm"      // chat and embedding clients
//	  "github.com/samzhu/ragkit/memory"   // vector and conversation stores
//	  "github.com/samzhu/ragkit/rag"      // splitting, ingestion and retrieval
//	)
//
// A typical pipeline splits documents with rag.NewTokenTextSplitter, embeds
// the chunks with an llm.Embedder, stores them in a memory.VectorStore and
// answers questions with rag.Pipeline.Ask. The ragctl command wires these
// from configuration and serves them over HTTP.
package ragkit
