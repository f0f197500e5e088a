package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

type ingestOptions struct {
	folder       string
	documentType string
	collection   string
	suffix       string
	exclude      []string
	batchSize    int
	progress     bool
	redact       bool
	dryRun       bool
}

func newIngestCmd(root *rootOptions) *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "ingest [folder]",
		Short: "Load, split, embed and store documents",
		Long: `Load every file in a folder whose name ends with the configured suffix
(default crisp.txt), split it into overlapping chunks, tag each chunk with a
document type and store the embedded chunks in the vector store. With
--redact, credentials detected by the Gitleaks rule set are replaced with
[REDACTED:<rule>] markers before splitting.

Running ingest twice on the same folder stores the chunks twice.

Examples:
  # Ingest ./documents with defaults
  ragctl ingest

  # Ingest another folder as FAQ material
  ragctl ingest ./faq --document-type faq

  # Show what would be stored without calling the embedding provider
  ragctl ingest --dry-run`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.folder = args[0]
			}
			return runIngest(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.folder, "folder", "", "folder to ingest (default from config, ./documents)")
	f.StringVar(&opts.documentType, "document-type", "", "document_type tag for every chunk (default troubleshooting)")
	f.StringVar(&opts.collection, "collection", "", "target collection (default zocket_collectionV3)")
	f.StringVar(&opts.suffix, "suffix", "", "file name suffix to match (default crisp.txt)")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "glob patterns of file names to skip")
	f.IntVar(&opts.batchSize, "batch-size", 0, "chunks per embedding request")
	f.BoolVar(&opts.progress, "progress", ingest.DefaultProgressEnabled(), "show a progress bar")
	f.BoolVar(&opts.redact, "redact", false, "mask detected secrets before storing")
	f.BoolVar(&opts.dryRun, "dry-run", false, "split and tag only; do not embed or store")

	return cmd
}

func runIngest(cmd *cobra.Command, root *rootOptions, opts *ingestOptions) error {
	ctx := cmd.Context()

	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if opts.folder != "" {
		cfg.Ingest.Folder = opts.folder
	}
	if opts.documentType != "" {
		cfg.Ingest.DocumentType = opts.documentType
	}
	if opts.collection != "" {
		cfg.VectorStore.Collection = opts.collection
	}
	if opts.suffix != "" {
		cfg.Ingest.Suffix = opts.suffix
	}
	if len(opts.exclude) > 0 {
		cfg.Ingest.Exclude = opts.exclude
	}
	if opts.batchSize > 0 {
		cfg.Ingest.BatchSize = opts.batchSize
	}
	if opts.redact {
		cfg.Ingest.RedactSecrets = true
	}

	logger, err := newStderrLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	pipelineOpts := ingest.OptionsFromConfig(cfg)
	pipelineOpts.ShowProgress = opts.progress
	out := cmd.OutOrStdout()

	if opts.dryRun {
		p, err := ingest.New(pipelineOpts, nil, nil, logger)
		if err != nil {
			return err
		}
		chunks, err := p.Process(ctx, cfg.Ingest.Folder)
		if err != nil {
			return err
		}
		sources := make(map[string]struct{})
		for _, c := range chunks {
			sources[c.Metadata[ingest.MetadataSource]] = struct{}{}
		}
		fmt.Fprintf(out, "Would ingest %d chunks from %d files into %q (document_type=%s)\n",
			len(chunks), len(sources), cfg.VectorStore.Collection, cfg.Ingest.DocumentType)
		return nil
	}

	store, err := vectorstore.NewStore(cfg.VectorStore, logger.Underlying())
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer store.Close()

	embedder, err := embeddings.NewProvider(cfg.Embeddings, logger.Underlying())
	if err != nil {
		return fmt.Errorf("failed to create embedding provider: %w", err)
	}
	defer embedder.Close()

	p, err := ingest.New(pipelineOpts, embedder, store, logger)
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, cfg.Ingest.Folder)
	if err != nil {
		logger.Error(ctx, "ingestion failed", zap.String("folder", cfg.Ingest.Folder), zap.Error(err))
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Fprintf(out, "Ingested %d chunks from %d files into %q in %s\n",
		result.Chunks, result.Files, result.Collection, result.Duration.Round(time.Millisecond))
	if result.Redacted > 0 {
		fmt.Fprintf(out, "Redacted %d secrets before storing\n", result.Redacted)
	}
	return nil
}
