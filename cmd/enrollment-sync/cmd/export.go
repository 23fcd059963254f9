package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"enrollment-sync/internal/pipeline"
	"enrollment-sync/pkg/logging"
	"enrollment-sync/pkg/utils"
)

var (
	exportFormat string
	exportOutput string
	exportDir    string
	exportLimit  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored records as CSV or JSON",
	Long: `export writes the stored records to stdout, to --output, or to a
timestamped file under --dir.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		path := exportOutput
		format := exportFormat
		if format == "" {
			format = utils.FormatFromPath(path)
		}
		if format == "" {
			format = pipeline.FormatCSV
		}
		if path == "" && exportDir != "" {
			if path, err = utils.NewOutputManager(exportDir).ExportFilePath("records", format, time.Now()); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if path != "" {
			file, err := os.Create(path)
			if err != nil {
				return err
			}
			defer file.Close()
			out = file
		}

		res, err := pipeline.ExportRecords(ctx, a.Store, out, format, exportLimit)
		if err != nil {
			return err
		}
		if path != "" {
			size, _ := utils.GetFileSize(path)
			logging.FromContext(ctx).Info().
				Str("file", path).
				Int64("bytes", size).
				Int("records", res.RecordCount).
				Msg("Export written")
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "csv or json (default from --output extension, else csv)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file")
	exportCmd.Flags().StringVar(&exportDir, "dir", "", "write a timestamped file into this directory")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum records, 0 for all")
}
