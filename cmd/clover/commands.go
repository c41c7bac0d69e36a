package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/engine"
	"github.com/Ramsey-B/clover/pkg/ingest"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newMigrateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations and exit",
		RunE: func(*cobra.Command, []string) error {
			return migrate(g.cfg, g.logger)
		},
	}
}

func newIngestCmd(g *globals) *cobra.Command {
	var (
		req       engine.IngestRequest
		header    string
		delimiter string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a CSV or XLSX file as a new batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if delimiter != "" {
				runes := []rune(delimiter)
				if len(runes) != 1 {
					return fmt.Errorf("delimiter must be a single character, got %q", delimiter)
				}
				req.Comma = runes[0]
			}
			req.Filename = filepath.Base(args[0])
			req.Reader = f
			req.HeaderMode = ingest.HeaderMode(header)

			a, err := start(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.stop(cmd.Context())

			result, err := a.engine.IngestBatch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.BatchID, "batch-id", "", "batch id (generated when empty)")
	flags.StringVar(&req.EmailColumn, "email-column", "", "column holding emails (detected when empty)")
	flags.StringVar(&req.PhoneColumn, "phone-column", "", "column holding phones (detected when empty)")
	flags.StringVar(&req.Sheet, "sheet", "", "XLSX worksheet (first when empty)")
	flags.StringVar(&delimiter, "delimiter", "", "CSV delimiter (comma when empty)")
	flags.BoolVar(&req.NumbersAsText, "numbers-as-text", false, "fingerprint numeric cells as written, so 1 and 1.0 differ")
	flags.StringVar(&header, "header", string(ingest.HeaderAuto), "header row handling: auto, present or absent")
	flags.IntVar(&req.ChunkSize, "chunk-size", 0, "records per transaction (config default when 0)")
	return cmd
}

func newRebuildCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <batch-id>",
		Short: "Recompute the cached clusters of one batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := start(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.stop(cmd.Context())

			result, err := a.engine.RebuildClusters(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func newBackfillCmd(g *globals) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Rebuild the cached clusters of every ready batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if concurrency > 0 {
				g.cfg.BackfillConcurrency = concurrency
			}
			a, err := start(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.stop(cmd.Context())

			result, err := a.engine.Backfill(cmd.Context())
			if err != nil {
				return err
			}
			if err := printJSON(result); err != nil {
				return err
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d batches failed to rebuild", len(result.Failed))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "batches rebuilt at once (config default when 0)")
	return cmd
}

func newClustersCmd(g *globals) *cobra.Command {
	var (
		kind     string
		page     int
		pageSize int
		direct   bool
	)

	cmd := &cobra.Command{
		Use:   "clusters <batch-id>",
		Short: "Print one page of a batch's clusters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := models.ParseKindFilter(kind)
			if err != nil {
				return err
			}

			a, err := start(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.stop(cmd.Context())

			var result *models.ClusterPage
			if direct {
				result, err = a.engine.ResolveClusters(cmd.Context(), args[0], filter, page, pageSize)
			} else {
				result, err = a.engine.GetClusters(cmd.Context(), args[0], filter, page, pageSize)
			}
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&kind, "kind", "all", "all, email, phone or merged")
	flags.IntVar(&page, "page", 1, "1-based page")
	flags.IntVar(&pageSize, "page-size", 0, "clusters per page (config default when 0)")
	flags.BoolVar(&direct, "direct", false, "resolve from the records instead of the cache")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
