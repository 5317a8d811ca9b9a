package cmd

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/climalert/internal/models"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the alert stream connection state",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st models.StreamStatus
		if err := newAPIClient(addr).do(cmd.Context(), http.MethodGet, "/api/v1/state", nil, &st); err != nil {
			return err
		}
		return printState(cmd.OutOrStdout(), st)
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Start the alert stream, resetting a failed connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st models.StreamStatus
		if err := newAPIClient(addr).do(cmd.Context(), http.MethodPost, "/api/v1/subscribe", nil, &st); err != nil {
			return err
		}
		return printState(cmd.OutOrStdout(), st)
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Close the alert stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		var st models.StreamStatus
		if err := newAPIClient(addr).do(cmd.Context(), http.MethodPost, "/api/v1/disconnect", nil, &st); err != nil {
			return err
		}
		return printState(cmd.OutOrStdout(), st)
	},
}

func printState(w io.Writer, st models.StreamStatus) error {
	switch GetOutput() {
	case "json":
		return printJSON(w, st)
	case "plain":
		fmt.Fprintln(w, st.State)
		return nil
	}
	fmt.Fprintf(w, "State:        %s\n", st.State)
	fmt.Fprintf(w, "Attempts:     %d\n", st.Attempts)
	fmt.Fprintf(w, "Subscribers:  %d\n", st.Subscribers)
	if st.LastActivity != nil {
		fmt.Fprintf(w, "Last seen:    %s (%s ago)\n",
			st.LastActivity.Local().Format(time.DateTime),
			time.Since(*st.LastActivity).Truncate(time.Second))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(stateCmd, subscribeCmd, disconnectCmd)
}
