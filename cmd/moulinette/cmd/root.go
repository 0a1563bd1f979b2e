// Package cmd holds the offline moulinette commands.
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewRootCommand creates the moulinette root command.
func NewRootCommand(logger *zap.Logger) *cobra.Command {
	if logger == nil {
		logger = zap.NewNop()
	}

	root := &cobra.Command{
		Use:   "moulinette",
		Short: "Reconcile Sage X3 inventory exports with physical counts",
		Long: `moulinette reads a Sage X3 inventory export, produces the counting template
handed to operators, and writes back a corrected export once counts are known.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(NewReconcileCommand(logger.Named("cli.reconcile")))
	root.AddCommand(NewTemplateCommand(logger.Named("cli.template")))

	return root
}
