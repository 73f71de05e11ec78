package main

import (
	"fmt"
	"net/http"

	"github.com/go-kit/log"
	"github.com/spf13/cobra"

	"github.com/prateek/heaplens/server"
)

var serveAddrFlag string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API for retained-path analysis",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewLogfmtLogger(log.NewSyncWriter(cmd.OutOrStdout()))
			srv := server.New(logger)
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", serveAddrFlag)
			return http.ListenAndServe(serveAddrFlag, srv)
		},
	}
	cmd.Flags().StringVar(&serveAddrFlag, "addr", ":8080", "HTTP listen address")
	return cmd
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
