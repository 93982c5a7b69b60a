package handlers

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/rcliao/commentlens/internal/query"
	"github.com/rcliao/commentlens/internal/tui"
)

// NewTUICmd creates the TUI command
func NewTUICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse analysis sessions in the terminal",
		Long:  `Launch an interactive browser over stored analysis sessions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueries(cmd.Context(), func(ctx context.Context, q *query.Service) error {
				return tui.Run(ctx, q)
			})
		},
	}
}
