package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"semrag/internal/builder"
	"semrag/internal/config"
	"semrag/internal/domain"
	"semrag/internal/logger"
	"semrag/internal/tui"
)

func main() {
	var cfgPath, logPath string
	var topK int
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/rag/config.yaml if not provided)")
	flag.StringVar(&logPath, "log", filepath.Join(os.TempDir(), "semrag.log"), "Log file path")
	flag.IntVar(&topK, "k", 0, "Number of chunks to retrieve per query (0 uses the configured top_k)")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: rag [--config=config.yaml] [--k=5] file1.txt [file2.txt ...]")
		os.Exit(1)
	}

	cfg, _, err := config.Resolve(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}

	zl, err := logger.NewFile(cfg.Log.Level, logPath)
	if err != nil {
		log.Fatalf("failed to set up logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	svc, err := builder.BuildService(cfg, zl)
	if err != nil {
		log.Fatalf("failed to build service: %v", err)
	}

	docs, err := svc.IngestFiles(context.Background(), inputs)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}
	zl.Info("documents ingested", zap.Int("documents", len(docs)))

	m := tui.New(svc, topK, summarize(docs))
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

func summarize(docs []domain.IngestedDocument) string {
	chunks := 0
	for _, d := range docs {
		chunks += d.Chunks
	}
	if len(docs) == 1 {
		line := fmt.Sprintf("%s: %d chunks", docs[0].Name, chunks)
		if docs[0].Summary != "" {
			line += " | " + truncate(docs[0].Summary, 120)
		}
		return line
	}
	return fmt.Sprintf("%d documents, %d chunks", len(docs), chunks)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
