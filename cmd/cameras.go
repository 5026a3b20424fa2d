package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	cameraID   string
	outputFile string
)

// Parent Command
var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Inspect cameras",
	Long:  `List registered cameras or grab a frame through the model server.`,
}

// List Command
var camerasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all cameras",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := initApplication(cfg)

		cameras, err := app.cameras.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error fetching cameras: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(cameras)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tLOCATION\tSTATUS\tIP")
		fmt.Fprintln(w, "--\t----\t--------\t------\t--")
		for _, cam := range cameras {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				cam.ID,
				cam.Name,
				cam.Location,
				cam.Status,
				cam.IPAddress,
			)
		}
		return w.Flush()
	},
}

// Snapshot Command
var camerasSnapshotCmd = &cobra.Command{
	Use:     "snapshot",
	Short:   "Save the current frame of a camera",
	Example: `  terra-eye cameras snapshot --id "camera_id" --output "frame.jpg"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := initApplication(cfg)

		fmt.Printf("Requesting frame for Camera ID: %s ...\n", cameraID)
		frame, contentType, err := app.modelServer.CaptureFrame(cmd.Context(), cameraID)
		if err != nil {
			return fmt.Errorf("error capturing frame: %w", err)
		}

		if err := os.WriteFile(outputFile, frame, 0o644); err != nil {
			return fmt.Errorf("error writing file: %w", err)
		}
		fmt.Printf("Frame (%s) saved to %s\n", contentType, outputFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(camerasCmd)
	camerasCmd.AddCommand(camerasListCmd)
	camerasCmd.AddCommand(camerasSnapshotCmd)

	camerasSnapshotCmd.Flags().StringVar(&cameraID, "id", "", "Camera ID (required)")
	camerasSnapshotCmd.Flags().StringVarP(&outputFile, "output", "o", "frame.jpg", "Output filename")
	_ = camerasSnapshotCmd.MarkFlagRequired("id")
}
