package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mamadbah2/moulinette/internal/domain/lots"
	"github.com/mamadbah2/moulinette/internal/sagex3"
)

// NewTemplateCommand creates the template command.
func NewTemplateCommand(logger *zap.Logger) *cobra.Command {
	var export, out, encoding string
	var sites []string

	cmd := &cobra.Command{
		Use:     "template",
		Short:   "Write the counting template for an export",
		Example: `  moulinette template --export inventaire.csv --out comptage.csv`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := os.Open(export)
			if err != nil {
				return fmt.Errorf("open export: %w", err)
			}
			defer in.Close()

			parsed, err := sagex3.ReadInventory(in, sagex3.ReadOptions{
				Encoding:   encoding,
				Classifier: lots.NewClassifier(lots.DefaultRegistry(sites...)),
			})
			if err != nil {
				return err
			}
			for _, issue := range parsed.Issues {
				logger.Debug("skip row", zap.Int("line", issue.Line), zap.String("reason", issue.Reason))
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := sagex3.WriteTemplate(f, parsed.Records); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d lines written to %s (%d skipped)\n", len(parsed.Records), out, len(parsed.Issues))
			return nil
		},
	}

	cmd.Flags().StringVar(&export, "export", "", "Sage X3 inventory export")
	cmd.Flags().StringVar(&out, "out", "", "template file to write")
	cmd.Flags().StringVar(&encoding, "encoding", "utf-8", "encoding of the export (utf-8, windows-1252)")
	cmd.Flags().StringSliceVar(&sites, "sites", nil, "extra site codes recognised in lot numbers")
	_ = cmd.MarkFlagRequired("export")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
