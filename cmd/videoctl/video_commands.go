package main

import (
	"fmt"
	"strconv"
	"time"

	"tiered_video_service/internal/video/app"
	"tiered_video_service/internal/video/domain"
	"tiered_video_service/internal/video/repository"

	"github.com/spf13/cobra"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <video_id>",
		Short: "Show one video record and its renditions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(repo repository.VideoRepo) error {
				rec, err := repo.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRecord(rec))
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		status string
		page   int
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List videos newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := domain.ListFilter{Status: domain.VideoStatus(status), Page: page, Limit: limit}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("invalid status %q", status)
			}
			return ctx.withStore(cmd.Context(), func(repo repository.VideoRepo) error {
				videos, total, err := repo.List(cmd.Context(), filter.Normalize())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(videos))
				for _, v := range videos {
					rows = append(rows, []string{
						v.VideoID,
						string(v.Status),
						v.JobID,
						strconv.Itoa(len(v.Renditions)),
						strconv.Itoa(v.RetryCount),
						v.CreatedAt.Format(time.RFC3339),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Video", "Status", "Job", "Renditions", "Retries", "Created"}, rows))
				fmt.Fprintf(cmd.OutOrStdout(), "total: %d\n", total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by PENDING, PROCESSING, COMPLETED or FAILED")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 12, "Page size")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <video_id>",
		Short: "Resubmit the missing renditions of a FAILED video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReconciler(cmd.Context(), func(r app.CompletionReconciler) error {
				rec, err := r.Retry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "video %s resubmitted as job %s\n", rec.VideoID, rec.JobID)
				return nil
			})
		},
	}
}

func newReprocessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reprocess <video_id>",
		Short: "Re-encode every rendition of a COMPLETED video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withReconciler(cmd.Context(), func(r app.CompletionReconciler) error {
				rec, err := r.Reprocess(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "video %s reprocessing as job %s\n", rec.VideoID, rec.JobID)
				return nil
			})
		},
	}
}

func newAnomaliesCommand(ctx *commandContext) *cobra.Command {
	var (
		videoID string
		limit   int64
	)
	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "Show conflicting events received after a video reached a final state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAnomalies(cmd.Context(), func(repo repository.AnomalyRepo) error {
				list, err := repo.List(cmd.Context(), videoID, limit)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(list))
				for _, a := range list {
					rows = append(rows, []string{
						a.ObservedAt.Format(time.RFC3339),
						a.VideoID,
						a.JobID,
						string(a.StoredStatus),
						string(a.EventStatus),
						a.Detail,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Observed", "Video", "Job", "Stored", "Event", "Detail"}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&videoID, "video", "", "Only anomalies for this video")
	cmd.Flags().Int64Var(&limit, "limit", 50, "Maximum rows")
	return cmd
}

func renderRecord(rec *domain.VideoRecord) string {
	rows := [][]string{
		{"video_id", rec.VideoID},
		{"status", string(rec.Status)},
		{"job_id", rec.JobID},
		{"source", rec.SourceLocation},
		{"retry_count", strconv.Itoa(rec.RetryCount)},
		{"version", strconv.FormatInt(rec.Version, 10)},
		{"created_at", rec.CreatedAt.Format(time.RFC3339)},
		{"updated_at", rec.UpdatedAt.Format(time.RFC3339)},
	}
	if rec.CompletedAt != nil {
		rows = append(rows, []string{"completed_at", rec.CompletedAt.Format(time.RFC3339)})
	}
	if rec.ErrorInfo != nil {
		rows = append(rows, []string{"error", rec.ErrorInfo.Code + ": " + rec.ErrorInfo.Message})
	}
	if rec.ThumbnailURL != "" {
		rows = append(rows, []string{"thumbnail", rec.ThumbnailURL})
	}
	if rec.DurationSeconds > 0 {
		rows = append(rows, []string{"duration", strconv.FormatFloat(rec.DurationSeconds, 'f', 1, 64) + "s"})
	}
	for _, tag := range domain.AllRenditionTags {
		loc := rec.Renditions[tag]
		if loc == "" {
			loc = "-"
		}
		rows = append(rows, []string{string(tag), loc})
	}
	return renderTable([]string{"Field", "Value"}, rows)
}
