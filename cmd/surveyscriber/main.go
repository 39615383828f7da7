// surveyscriber is the one-shot CLI: extract a directory of images straight
// to xlsx/csv without running the server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DruboPaul/web-surveyscriber/internal/common"
	"github.com/DruboPaul/web-surveyscriber/internal/core"
	"github.com/DruboPaul/web-surveyscriber/internal/entity"
	"github.com/DruboPaul/web-surveyscriber/internal/export"
	"github.com/DruboPaul/web-surveyscriber/internal/pipeline"
	"github.com/DruboPaul/web-surveyscriber/internal/progress"
)

func main() {
	if err := buildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:           "surveyscriber",
		Short:         "Extract structured data from scanned form images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildExtractCommand())
	return root
}

func buildExtractCommand() *cobra.Command {
	var (
		dir        string
		fields     []string
		schemaFile string
		outDir     string
		outName    string
		ocrName    string
		aiName     string
		parallel   bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run extraction over a directory of images",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelInfo
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			schema, err := loadSchema(fields, schemaFile)
			if err != nil {
				return err
			}

			cfg, err := common.LoadConfig()
			if err != nil {
				return err
			}

			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			tracker := progress.NewMemoryStore(0)
			exporter := export.NewService(outDir, logger)
			step := pipeline.NewStep(cfg.Queue.CallTimeout, logger)
			// The directory's parent acts as the upload root, its base as the
			// batch id.
			proc := core.NewProcessor(logger, common.NewSettingsStore("", cfg.Settings), filepath.Dir(abs),
				step, tracker, exporter, nil, nil, nil, cfg.Queue.MaxWorkers)

			job, err := proc.Submit(filepath.Base(abs), schema, outName, ocrName, aiName, parallel)
			if err != nil {
				return err
			}
			if err := proc.ProcessBatch(cmd.Context(), job); err != nil {
				rec, _ := tracker.Get(job.JobID)
				return fmt.Errorf("%s (%s)", rec.ErrorMsg, rec.Status)
			}

			rec, _ := tracker.Get(job.JobID)
			fmt.Printf("extracted %d rows from %d images\n", rec.Rows, rec.Total)
			fmt.Printf("  xlsx: %s\n", rec.ExcelPath)
			fmt.Printf("  csv:  %s\n", rec.CSVPath)
			if rec.Tokens > 0 {
				fmt.Printf("  tokens: %d\n", rec.Tokens)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory of images to process")
	cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "comma-separated field names to extract")
	cmd.Flags().StringVar(&schemaFile, "schema", "", "JSON file mapping field names to descriptions")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&outName, "name", "", "output file name (without extension)")
	cmd.Flags().StringVar(&ocrName, "ocr", "", "OCR engine override (none, google, azure, custom, local)")
	cmd.Flags().StringVar(&aiName, "ai", "", "extraction provider override (openai, anthropic, google, custom)")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "process images with a worker pool")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log progress")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}

func loadSchema(fields []string, schemaFile string) (entity.Schema, error) {
	switch {
	case schemaFile != "":
		b, err := os.ReadFile(schemaFile)
		if err != nil {
			return nil, fmt.Errorf("read schema file: %w", err)
		}
		return entity.ParseSchemaJSON(b)
	case len(fields) > 0:
		var names []string
		for _, f := range fields {
			if f = strings.TrimSpace(f); f != "" {
				names = append(names, f)
			}
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("no usable field names")
		}
		return entity.SchemaFromFields(names), nil
	default:
		return nil, fmt.Errorf("either --fields or --schema is required")
	}
}
