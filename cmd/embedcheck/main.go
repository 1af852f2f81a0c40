// Command embedcheck exercises the embedding pipeline end to end
// against a scratch store, without going through the MCP transport.
// Useful for confirming a model/tokenizer pair loads and produces
// sane vectors before wiring them into a real deployment.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/dshills/mcp-memoria/internal/embedmodel"
	"github.com/dshills/mcp-memoria/internal/memory"
	"github.com/dshills/mcp-memoria/internal/store"
)

func main() {
	fmt.Println("Testing embedding integration...")

	tmpFile, err := os.CreateTemp("", "mcp-memoria-embedcheck-*.db")
	if err != nil {
		log.Fatalf("failed to create temp db: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	defer os.Remove(tmpPath)

	st, err := store.Open(tmpPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	embedder, err := embedmodel.NewFromEnv()
	if err != nil {
		log.Fatalf("failed to init embedder: %v", err)
	}
	defer embedder.Close()

	ctx := context.Background()

	m := &memory.Memory{
		ID:      "embedcheck-1",
		Scope:   memory.ScopeGlobal,
		Kind:    "note",
		Content: "Add adds two integers and returns their sum.",
	}
	if err := st.Insert(ctx, m); err != nil {
		log.Fatalf("failed to insert memory: %v", err)
	}

	vectors, err := embedder.Embed(ctx, []string{m.Content})
	if err != nil {
		fmt.Printf("\nembedder unavailable: %v\n", err)
		fmt.Println("this is expected when built without the onnx build tag")
		return
	}

	if err := st.UpdateEmbedding(ctx, m.ID, vectors[0]); err != nil {
		log.Fatalf("failed to store embedding: %v", err)
	}

	got, err := st.Get(ctx, m.ID)
	if err != nil {
		log.Fatalf("failed to reload memory: %v", err)
	}

	fmt.Printf("\nVerification:\n")
	fmt.Printf("  Dimension: %d\n", embedder.Dimension())
	fmt.Printf("  Embedding length: %d\n", len(got.Embedding))
	fmt.Printf("  Status: %s\n", got.EmbeddingStatus)

	if len(got.Embedding) == embedder.Dimension() {
		fmt.Println("\nSUCCESS: embedding generated and stored")
	} else {
		fmt.Println("\nFAILURE: embedding dimension mismatch")
		os.Exit(1)
	}
}
