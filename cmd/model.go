package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"terra-eye/internal/models"
)

var (
	modelCameraID string
	modelID       string
	identity      string
	password      string
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Control detection models",
	Long:  `List the model catalog and start or stop a model on a camera.`,
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the detection model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := initApplication(cfg)

		catalog, err := app.modelRepo.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("error fetching models: %w", err)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(catalog)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTYPE")
		fmt.Fprintln(w, "--\t----\t----")
		for _, m := range catalog {
			fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Name, m.Type)
		}
		return w.Flush()
	},
}

var modelStartCmd = &cobra.Command{
	Use:     "start",
	Short:   "Start a model on a camera",
	Example: `  terra-eye model start --camera "camera_id" --model "model_id" --identity admin@example.com`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModel(cmd, models.ActionStart)
	},
}

var modelStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a model on a camera",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runModel(cmd, models.ActionStop)
	},
}

// runModel signs in when an identity is given and sends the command
func runModel(cmd *cobra.Command, action models.ModelAction) error {
	app := initApplication(cfg)
	ctx := cmd.Context()

	var token string
	if identity != "" {
		if password == "" {
			password = os.Getenv("TERRA_PASSWORD")
		}
		tok, err := app.auth.AuthWithPassword(ctx, identity, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		token = tok
	}

	t, err := app.modelCtl.Run(ctx, token, modelCameraID, modelID, action)
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(t); encErr != nil {
			return encErr
		}
		return err
	}
	if err != nil {
		return err
	}
	fmt.Println(t.Message)
	return nil
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelListCmd, modelStartCmd, modelStopCmd)

	for _, c := range []*cobra.Command{modelStartCmd, modelStopCmd} {
		c.Flags().StringVar(&modelCameraID, "camera", "", "Camera ID (required)")
		c.Flags().StringVar(&modelID, "model", "", "Model ID (required)")
		c.Flags().StringVar(&identity, "identity", "", "PocketBase user to sign in as")
		c.Flags().StringVar(&password, "password", "", "Password (defaults to $TERRA_PASSWORD)")
		_ = c.MarkFlagRequired("camera")
		_ = c.MarkFlagRequired("model")
	}
}
