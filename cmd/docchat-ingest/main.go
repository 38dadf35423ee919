// Command docchat-ingest indexes documents into the vector store without
// starting the chat TUI. Useful for preparing an index ahead of time or from
// scripts.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding/ollama"
	"docchat/internal/embedding/openai"
	"docchat/internal/loader"
	"docchat/internal/vectorindex"
	"docchat/internal/vectorindex/memory"
	"docchat/internal/vectorindex/qdrant"
	"docchat/internal/vectorindex/sqlite"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: docchat-ingest [--config=config.yaml] file.pdf [file2.pdf ...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	split, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		log.Fatalf("invalid chunker config: %v", err)
	}
	index := vectorindex.NewCollection(buildEmbedder(cfg), buildBackend(cfg))
	defer index.Close()

	ctx := context.Background()
	for _, path := range inputs {
		doc, err := loader.Load(path)
		if err != nil {
			log.Fatalf("loading %s: %v", path, err)
		}
		chunks := split.SplitAll(doc)
		ids := make([]string, len(chunks))
		documents := make([]string, len(chunks))
		metadatas := make([]map[string]any, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
			documents[i] = c.Content
			metadatas[i] = c.Metadata
		}
		if err := index.Upsert(ctx, ids, documents, metadatas); err != nil {
			log.Fatalf("indexing %s: %v", path, err)
		}
		fmt.Printf("%s: %d chunks indexed as %q\n", path, len(chunks), doc.Source)
	}

	count, err := index.Count(ctx)
	if err != nil {
		log.Fatalf("reading index: %v", err)
	}
	fmt.Printf("Index now holds %d chunks.\n", count)
}

func buildEmbedder(cfg *config.AppConfig) domain.Embedder {
	switch cfg.Embedder.Type {
	case "ollama", "":
		return ollama.NewClient(ollama.Config{
			BaseURL: cfg.Embedder.Ollama.BaseURL,
			Model:   cfg.Embedder.Ollama.Model,
			Timeout: time.Duration(cfg.Embedder.Ollama.TimeoutSecs) * time.Second,
		})
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		return client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
		return nil
	}
}

func buildBackend(cfg *config.AppConfig) vectorindex.Backend {
	switch cfg.Index.Type {
	case "sqlite", "":
		backend, err := sqlite.Open(sqlite.Config{
			Path:       cfg.Index.SQLite.Path,
			Collection: cfg.Index.SQLite.Collection,
		})
		if err != nil {
			log.Fatalf("opening index: %v", err)
		}
		return backend
	case "memory":
		return memory.New()
	case "qdrant":
		if cfg.Index.Qdrant == nil {
			log.Fatalf("qdrant config missing")
		}
		return qdrant.New(qdrant.Config{
			URL:        cfg.Index.Qdrant.URL,
			APIKey:     cfg.Index.Qdrant.APIKey,
			Collection: cfg.Index.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Index.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		log.Fatalf("unknown index backend: %s", cfg.Index.Type)
		return nil
	}
}
