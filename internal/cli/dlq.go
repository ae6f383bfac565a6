package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/salesledger/pkg/db"
	"github.com/angelmondragon/salesledger/pkg/db/models"
	"github.com/angelmondragon/salesledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesledger/pkg/errors"
	"github.com/angelmondragon/salesledger/pkg/outbox"
)

func newDLQCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered outbox events",
	}
	cmd.AddCommand(newDLQListCmd(open), newDLQReplayCmd(open))
	return cmd
}

func newDLQListCmd(open opener) *cobra.Command {
	var (
		reason string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := outbox.DLQFilter{Reason: enums.OutboxDLQErrorReason(reason), Limit: limit}
			if reason != "" && !filter.Reason.IsValid() {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown reason %q", reason)
			}
			return run(cmd.Context(), open, func(a *app) error {
				rows, err := a.dlq.List(cmd.Context(), filter)
				if err != nil {
					return dbpkg.StoreError(err, "list dead letters")
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No dead-lettered events")
					return nil
				}
				return printDLQ(cmd, rows)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Only show max_attempts, non_retryable or undecodable")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows to show")
	return cmd
}

func printDLQ(cmd *cobra.Command, rows []models.OutboxDLQ) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("EVENT", "TYPE", "AGGREGATE", "REASON", "ATTEMPTS", "FAILED AT", "ERROR")
	for _, r := range rows {
		msg := ""
		if r.ErrorMessage != nil {
			msg = *r.ErrorMessage
		}
		t.Row(
			r.EventID.String(),
			string(r.EventType),
			string(r.AggregateType)+":"+r.AggregateID,
			string(r.ErrorReason),
			strconv.Itoa(r.AttemptCount),
			r.FailedAt.UTC().Format(time.RFC3339),
			msg,
		)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return err
}

func newDLQReplayCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <event_id>",
		Short: "Queue a dead-lettered event for publishing again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := uuid.Parse(args[0])
			if err != nil {
				return pkgerrors.Newf(pkgerrors.CodeValidation, "event id %q is not a uuid", args[0])
			}
			return run(cmd.Context(), open, func(a *app) error {
				var entry *models.OutboxDLQ
				err := a.db.WithTx(cmd.Context(), func(tx *gorm.DB) error {
					var txErr error
					entry, txErr = a.dlq.ReplayTx(tx, eventID)
					return txErr
				})
				switch {
				case errors.Is(err, outbox.ErrNotDeadLettered):
					return pkgerrors.Newf(pkgerrors.CodeNotFound, "event %s is not dead-lettered", eventID)
				case err != nil:
					return dbpkg.StoreError(err, "replay dead letter")
				}
				a.logg.Info(a.logg.WithFields(cmd.Context(), map[string]any{
					"event_id":     eventID.String(),
					"event_type":   entry.EventType,
					"error_reason": entry.ErrorReason,
				}), "dead letter replayed")
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s (%s %s)\n", eventID, entry.EventType, entry.AggregateID)
				return nil
			})
		},
	}
}
