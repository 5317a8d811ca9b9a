package cmd

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/climalert/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Change notification status",
}

var statusSetCmd = &cobra.Command{
	Use:   "set <notification-id> <ACTIVE|PAUSED|CANCELLED>",
	Short: "Request a notification status change",
	Long: `Queue a status change for a notification subscription.

Rapid changes to the same notification are coalesced by the agent; only
the last one is written.

Example:
  climactl status set 42 PAUSED`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := models.ParseNotificationStatus(args[1])
		if err != nil {
			return err
		}

		var resp struct {
			NotificationID string `json:"notificationId"`
			Status         string `json:"status"`
		}
		path := "/api/v1/notifications/" + url.PathEscape(args[0]) + "/status"
		if err := newAPIClient(addr).do(cmd.Context(), http.MethodPut, path, models.StatusUpdate{Status: status}, &resp); err != nil {
			return err
		}

		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for notification %s\n", resp.Status, resp.NotificationID)
		return nil
	},
}

func init() {
	statusCmd.AddCommand(statusSetCmd)
	rootCmd.AddCommand(statusCmd)
}
