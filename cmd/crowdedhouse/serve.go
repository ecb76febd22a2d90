package main

import (
	"github.com/spf13/cobra"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"crowdedhouse/internal/config"
	"crowdedhouse/internal/mcp"
	"crowdedhouse/internal/transport"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP tool server over stdio",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// stdout carries the protocol, so story text only leaves through a
	// chat transport or the tool results.
	sender := transport.Discard
	if projectConfig.Transport.Kind == config.TransportDiscord {
		s, err := newSender(projectConfig, nil)
		if err != nil {
			return err
		}
		sender = s
	}

	engine, db, err := openEngine(ctx, projectConfig, sender)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	server := mcp.NewServer(engine, logger, version)
	return server.Run(ctx, &sdk.StdioTransport{})
}
