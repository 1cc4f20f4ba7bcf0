package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vrsandeep/inkbridge/internal/batch"
	"github.com/vrsandeep/inkbridge/internal/models"
)

func batchCmd() *cobra.Command {
	var settings models.ConversionSettings
	var settingsFile, target string
	var upload bool
	var workers int

	cmd := &cobra.Command{
		Use:   "batch <archive-id>...",
		Short: "Convert several archives, optionally uploading them to the device",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(settings, settingsFile)
			if err != nil {
				return err
			}
			req := models.BatchRequest{
				ArchiveIDs: args,
				Settings:   s,
				Workers:    workers,
				Mode:       models.BatchDownload,
			}
			if upload {
				req.Mode = models.BatchUpload
				req.TargetPath = target
				if req.TargetPath == "" {
					req.TargetPath = app.Config().Device.UploadPath
				}
			}
			if err := app.Batches().Validate(req); err != nil {
				return err
			}
			if err := app.Pipeline().Preflight(); err != nil {
				return err
			}

			var uploader batch.Uploader
			if u := app.Uploader(); u != nil {
				uploader = u
			}
			scheduler := batch.NewScheduler(app.Jobs(), uploader, app.Config().Batch.Workers, app.Logger().Named("batch"))
			status := scheduler.Run(cmd.Context(), uuid.NewString(), req, func(st models.BatchStatus) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\rconverted %d/%d, uploaded %d, failed %d", st.Converted, st.Total, st.Uploaded, st.Failed)
			})
			fmt.Fprintln(cmd.ErrOrStderr())

			for _, f := range status.Failures {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s failed: %s\n", f.ArchiveID, f.Phase, f.Error)
			}
			if !upload {
				for archiveID, jobID := range status.Jobs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: job %s\n", archiveID, jobID)
				}
			}
			if status.Failed > 0 {
				return fmt.Errorf("%d of %d archives failed", status.Failed, status.Total)
			}
			return nil
		},
	}
	settingsFlags(cmd, &settings, &settingsFile)
	cmd.Flags().BoolVar(&upload, "upload", false, "upload results to the device")
	cmd.Flags().StringVar(&target, "target", "", "device folder for uploads")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent conversions")
	return cmd
}
