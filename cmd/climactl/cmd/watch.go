package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/climalert/internal/agent"
	"github.com/good-yellow-bee/climalert/internal/api"
	"github.com/good-yellow-bee/climalert/internal/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live alerts",
	Long: `Print alerts as the agent receives them. Stop with Ctrl+C.

Example:
  climactl watch -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return watchAlerts(ctx, cmd.OutOrStdout(), &http.Client{})
	},
}

func watchAlerts(ctx context.Context, w io.Writer, client *http.Client) error {
	streamURL := strings.TrimRight(addr, "/") + "/api/v1/alerts/stream"
	stream, err := agent.OpenStream(ctx, client, streamURL, nil)
	if err != nil {
		return err
	}
	defer stream.Close()
	PrintVerbose("watching %s", streamURL)

	for {
		frame, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("read stream: %w", err)
		}
		if frame.Event != api.EventAlert {
			continue
		}

		if GetOutput() == "json" {
			fmt.Fprintln(w, frame.Data)
			continue
		}
		var ev models.AlertEvent
		if err := json.Unmarshal([]byte(frame.Data), &ev); err != nil {
			PrintVerbose("skip undecodable frame: %v", err)
			continue
		}
		fmt.Fprintf(w, "[%s] %s\n", ev.OccurredAt.Local().Format("15:04:05"), ev.Summary())
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
