package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vrsandeep/inkbridge/internal/models"
)

// settingsFlags binds the conversion settings every converting command
// accepts.
func settingsFlags(cmd *cobra.Command, s *models.ConversionSettings, file *string) {
	*s = models.DefaultSettings()
	cmd.Flags().StringVar(&s.Orientation, "orientation", "", "landscape or portrait")
	cmd.Flags().BoolVar(&s.ExtractPages, "extract-pages", false, "download pages individually")
	cmd.Flags().BoolVar(&s.Overlap, "overlap", s.Overlap, "overlap split segments")
	cmd.Flags().StringVar(&s.ContrastBoost, "contrast-boost", s.ContrastBoost, "contrast boost")
	cmd.Flags().StringVar(&s.Margin, "margin", s.Margin, "margin crop")
	cmd.Flags().StringVar(file, "settings", "", "JSON file with the full conversion settings")
}

func loadSettings(s models.ConversionSettings, file string) (models.ConversionSettings, error) {
	if file == "" {
		return s, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("invalid settings file: %w", err)
	}
	return s, nil
}

func convertCmd() *cobra.Command {
	var settings models.ConversionSettings
	var settingsFile, outDir string

	cmd := &cobra.Command{
		Use:   "convert <archive-id>",
		Short: "Convert one archive to a local file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(settings, settingsFile)
			if err != nil {
				return err
			}
			job, err := app.Jobs().Run(cmd.Context(), args[0], s)
			if err != nil {
				return err
			}

			body, name, _, err := app.Jobs().StreamArtifact(job.JobID)
			if err != nil {
				return err
			}
			defer body.Close()

			dest := filepath.Join(outDir, name)
			f, err := os.Create(dest)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, body); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", dest)
			return nil
		},
	}
	settingsFlags(cmd, &settings, &settingsFile)
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "output directory")
	return cmd
}
