package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cascade-rentals/opsdash/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load source feeds into the store",
}

// runImport opens the store and feeds one file through the named import.
func runImport(ctx context.Context, path string,
	run func(context.Context, *importer.Importer, string) (*importer.Result, error),
) error {
	if err := cfg.Validate("import"); err != nil {
		return err
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	res, err := run(ctx, importer.New(st, cfg.Import.BatchSize, zap.L()), path)
	if err != nil {
		return err
	}

	zap.L().Info("import finished",
		zap.String("path", path),
		zap.Int("parsed", res.Parsed),
		zap.Int("skipped", res.Skipped),
		zap.Int64("written", res.Written),
	)
	return nil
}

var importPOSCmd = &cobra.Command{
	Use:   "pos <file.csv>",
	Short: "Import a POS transaction export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), args[0],
			func(ctx context.Context, im *importer.Importer, path string) (*importer.Result, error) {
				return im.ImportPOS(ctx, path)
			})
	},
}

var importRFIDCmd = &cobra.Command{
	Use:   "rfid <file.csv>",
	Short: "Import an RFID correlation export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), args[0],
			func(ctx context.Context, im *importer.Importer, path string) (*importer.Result, error) {
				return im.ImportRFID(ctx, path)
			})
	},
}

var importScorecardCmd = &cobra.Command{
	Use:   "scorecard <file.xlsx>",
	Short: "Import a financial scorecard workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), args[0],
			func(ctx context.Context, im *importer.Importer, path string) (*importer.Result, error) {
				return im.ImportScorecards(ctx, path)
			})
	},
}

var importCatalogCmd = &cobra.Command{
	Use:   "catalog <file.csv>",
	Short: "Import an item master snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), args[0],
			func(ctx context.Context, im *importer.Importer, path string) (*importer.Result, error) {
				return im.ImportCatalog(ctx, path)
			})
	},
}

func init() {
	importCmd.AddCommand(importPOSCmd, importRFIDCmd, importScorecardCmd, importCatalogCmd)
	rootCmd.AddCommand(importCmd)
}
