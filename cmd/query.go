package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"videoHighlights/core"
	"videoHighlights/server"
)

var flagMaxResults int

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question about the processed videos",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		if strings.TrimSpace(question) == "" {
			return core.ErrEmptyQuery
		}

		res, err := initSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer res.Cleanup()

		req := core.ChatRequest{Query: question}
		if cmd.Flags().Changed("max-results") {
			req.MaxResults = &flagMaxResults
		}
		resp, err := res.Chat.Query(cmd.Context(), req)
		if err != nil {
			return err
		}
		fmt.Print(formatChatResponse(resp))
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing highlight search tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := initSystem(cmd.Context())
		if err != nil {
			return err
		}
		defer res.Cleanup()
		return server.ServeMCP(res.Chat, res.Store)
	},
}

func init() {
	queryCmd.Flags().IntVar(&flagMaxResults, "max-results", 5, "maximum number of highlights to return")
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(mcpCmd)
}
