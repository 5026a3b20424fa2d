package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"terra-eye/internal/services"
	"terra-eye/internal/toast"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Realtime alerts",
}

var alertsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print realtime alert toasts until interrupted",
	Long: `Subscribes to attendance, fire, helmet and notification changes and
prints the toast each one produces, the same way the dashboard shows them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := initApplication(cfg)
		ctx := cmd.Context()

		cameras, err := app.cameras.List(ctx)
		if err != nil {
			return fmt.Errorf("error fetching cameras: %w", err)
		}

		var mu sync.Mutex
		enc := json.NewEncoder(os.Stdout)
		out := toast.SinkFunc(func(t *toast.Toast) {
			mu.Lock()
			defer mu.Unlock()
			if jsonOutput {
				_ = enc.Encode(t)
				return
			}
			fmt.Printf("%s  %-7s %s %s\n", t.Timestamp.Format("15:04:05"), t.Type, t.Icon, t.Message)
		})

		tables := []string{
			services.TableAttendance,
			services.TableFire,
			services.TableHelmet,
			services.TableNotifications,
		}
		ch, err := app.realtime.Subscribe(ctx, "cli-watch", tables,
			app.notifier.Handler("cli", services.CameraList(cameras), out))
		if err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
		defer ch.Close()

		fmt.Fprintf(os.Stderr, "Watching %d tables, press Ctrl+C to stop\n", len(tables))
		select {
		case <-ctx.Done():
			return nil
		case <-ch.Done():
			return fmt.Errorf("realtime connection closed")
		}
	},
}

func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.AddCommand(alertsWatchCmd)
}
