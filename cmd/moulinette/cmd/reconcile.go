package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/lots"
	"github.com/mamadbah2/moulinette/internal/domain/models"
	"github.com/mamadbah2/moulinette/internal/repository/memory"
	"github.com/mamadbah2/moulinette/internal/service/sessions"
)

type reconcileFlags struct {
	export   string
	counts   string
	strategy string
	out      string
	encoding string
	sites    []string
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(logger *zap.Logger) *cobra.Command {
	flags := &reconcileFlags{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Write the corrected export for an export and its counts",
		Example: `  moulinette reconcile --export inventaire.csv --counts comptage.csv --out corrige.csv
  moulinette reconcile --export inventaire.csv --counts comptage.csv --strategy LIFO --out corrige.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReconcile(cmd, flags, logger)
		},
	}

	cmd.Flags().StringVar(&flags.export, "export", "", "Sage X3 inventory export")
	cmd.Flags().StringVar(&flags.counts, "counts", "", "completed count sheet (CSV)")
	cmd.Flags().StringVar(&flags.strategy, "strategy", string(models.StrategyFIFO), "distribution strategy: FIFO or LIFO")
	cmd.Flags().StringVar(&flags.out, "out", "", "corrected export to write")
	cmd.Flags().StringVar(&flags.encoding, "encoding", "utf-8", "encoding of the export (utf-8, windows-1252)")
	cmd.Flags().StringSliceVar(&flags.sites, "sites", nil, "extra site codes recognised in lot numbers")
	_ = cmd.MarkFlagRequired("export")
	_ = cmd.MarkFlagRequired("counts")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runReconcile(cmd *cobra.Command, flags *reconcileFlags, logger *zap.Logger) error {
	strategy, err := models.ParseStrategy(flags.strategy)
	if err != nil {
		return err
	}

	workDir, err := os.MkdirTemp("", "moulinette-*")
	if err != nil {
		return fmt.Errorf("create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	svc, err := sessions.NewService(memory.NewStore(), nil, sessions.Options{
		DataDir:         workDir,
		Encoding:        flags.encoding,
		DefaultStrategy: strategy,
		Classifier:      lots.NewClassifier(lots.DefaultRegistry(flags.sites...)),
	}, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	exportFile, err := os.Open(flags.export)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	session, _, err := svc.Upload(ctx, filepath.Base(flags.export), exportFile)
	_ = exportFile.Close()
	if err != nil {
		return err
	}

	countsFile, err := os.Open(flags.counts)
	if err != nil {
		return fmt.Errorf("open counts: %w", err)
	}
	summary, err := svc.Process(ctx, session.ID, countsFile, strategy)
	_ = countsFile.Close()
	if err != nil {
		return err
	}

	finalPath, err := svc.ArtifactPath(ctx, session.ID, sessions.ArtifactFinal)
	if err != nil {
		return err
	}
	if err := copyFile(finalPath, flags.out); err != nil {
		return fmt.Errorf("write %s: %w", flags.out, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
