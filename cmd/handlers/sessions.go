package handlers

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rcliao/commentlens/internal/query"
)

// NewSessionsCmd creates the sessions command group
func NewSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Browse stored analysis sessions",
		Long: `List and inspect analysis sessions.

Examples:
  commentlens sessions list
  commentlens sessions show        # latest session
  commentlens sessions show 3`,
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsShowCmd())

	return cmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueries(cmd.Context(), func(ctx context.Context, q *query.Service) error {
				sessions, err := q.ListSessions(ctx)
				if err != nil {
					return fmt.Errorf("failed to list sessions: %w", err)
				}
				printSessionList(os.Stdout, sessions)
				return nil
			})
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one session (the latest when no id is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				var err error
				id, err = strconv.ParseInt(args[0], 10, 64)
				if err != nil || id < 1 {
					return fmt.Errorf("invalid session id %q", args[0])
				}
			}

			return withQueries(cmd.Context(), func(ctx context.Context, q *query.Service) error {
				session, err := q.GetSession(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to load session: %w", err)
				}
				printSession(os.Stdout, session)
				return nil
			})
		},
	}
}

// NewTimeSeriesCmd creates the timeseries command
func NewTimeSeriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeseries",
		Short: "Show positive sentiment across all sessions",
		Long: `Show the overall positive percentage of every session in creation order,
followed by the latest change of the overall and per-category series.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueries(cmd.Context(), func(ctx context.Context, q *query.Service) error {
				series, err := q.TimeSeries(ctx)
				if err != nil {
					return fmt.Errorf("failed to build time series: %w", err)
				}
				printTimeSeries(os.Stdout, series)
				return nil
			})
		},
	}
}

// NewClusterCmd creates the cluster command
func NewClusterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cluster <id>",
		Short: "Show the current members of a cluster",
		Long: `Show every comment currently assigned to a cluster, most important first.
This reads the live comment store, not a stored session.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clusterID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid cluster id %q", args[0])
			}

			return withQueries(cmd.Context(), func(ctx context.Context, q *query.Service) error {
				detail, err := q.ClusterDetail(ctx, clusterID)
				if err != nil {
					return fmt.Errorf("failed to load cluster: %w", err)
				}
				printClusterDetail(os.Stdout, detail)
				return nil
			})
		},
	}
}

func withQueries(ctx context.Context, fn func(ctx context.Context, q *query.Service) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(ctx, query.New(db))
}
