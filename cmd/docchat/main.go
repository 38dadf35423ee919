package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"docchat/internal/chunker"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding/ollama"
	"docchat/internal/embedding/openai"
	genollama "docchat/internal/generator/ollama"
	"docchat/internal/loader"
	"docchat/internal/reranker"
	"docchat/internal/service"
	"docchat/internal/summarizer"
	"docchat/internal/tui"
	"docchat/internal/vectorindex"
	"docchat/internal/vectorindex/memory"
	"docchat/internal/vectorindex/qdrant"
	"docchat/internal/vectorindex/sqlite"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docchat/config.yaml if not provided)")
	flag.Parse()
	inputs := flag.Args()

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

	emb := buildEmbedder(cfg)
	index := vectorindex.NewCollection(emb, buildBackend(cfg))
	defer index.Close()

	split, err := chunker.New(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap)
	if err != nil {
		log.Fatalf("invalid chunker config: %v", err)
	}
	gen := genollama.NewClient(genollama.Config{
		BaseURL: cfg.Generator.BaseURL,
		Model:   cfg.Generator.Model,
	})
	pipeline, err := service.New(split, index, reranker.NewLexical(), gen, service.Options{
		Candidates: cfg.Retrieval.Candidates,
		TopK:       cfg.Retrieval.TopK,
	})
	if err != nil {
		log.Fatalf("invalid retrieval config: %v", err)
	}

	ctx := context.Background()
	var texts []string
	total := 0
	for _, path := range inputs {
		doc, err := loader.Load(path)
		if err != nil {
			log.Fatalf("loading %s: %v", path, err)
		}
		n, err := pipeline.Ingest(ctx, doc)
		if err != nil {
			log.Fatalf("ingesting %s: %v", path, err)
		}
		total += n
		texts = append(texts, doc.Text())
	}

	summary := ingestSummary(cfg, texts, total)
	if len(inputs) == 0 {
		count, err := index.Count(ctx)
		if err != nil {
			log.Fatalf("reading index: %v", err)
		}
		if count == 0 {
			fmt.Println("Usage: docchat [--config=config.yaml] file.pdf [file2.pdf ...]")
			fmt.Println("The index is empty; ingest at least one document first.")
			os.Exit(1)
		}
		summary = fmt.Sprintf("Using existing index with %d chunks.", count)
	}

	m := tui.New(pipeline, summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

func ingestSummary(cfg *config.AppConfig, texts []string, total int) string {
	if len(texts) == 0 {
		return ""
	}
	sum, err := summarizer.NewFrequency().Summarize(strings.Join(texts, "\n"), cfg.Summarizer.MaxSentences)
	if err != nil || sum == "" {
		return fmt.Sprintf("Ingested %d chunks.", total)
	}
	return fmt.Sprintf("Ingested %d chunks. %s", total, sum)
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
