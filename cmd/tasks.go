package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/ytfetch/internal/formatter"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/urfave/cli/v3"
)

// TasksList prints persisted tasks, newest first.
func (r *Runner) TasksList(ctx context.Context, cmd *cli.Command) error {
	repo, closeDB, err := r.openRepository()
	if err != nil {
		return err
	}
	defer closeDB()

	criteria := map[string]any{}
	if limit := cmd.Int("limit"); limit > 0 {
		criteria["limit"] = int(limit)
	}
	if status := cmd.String("status"); status != "" {
		if !models.TaskStatus(status).Valid() {
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
		}
		criteria["status"] = status
	}

	records, err := repo.List(criteria)
	if err != nil {
		return fmt.Errorf("failed to list tasks: %w", err)
	}
	list := make([]models.Task, len(records))
	for i, rec := range records {
		list[i] = rec.Task
	}

	switch {
	case cmd.Bool("json"):
		return r.writeJSON(list, cmd.Bool("pretty"))
	case cmd.Bool("csv"):
		data, err := formatter.TasksToCSV(list)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	}

	if len(list) == 0 {
		return r.writePlain("No tasks recorded yet.\n")
	}
	r.writePlainHeader(fmt.Sprintf("%d tasks", len(list)))
	for _, t := range list {
		r.writePlain("%s  %s  %s\n", t.ID, t.CreatedAt.Format("2006-01-02 15:04"), formatter.Summary(t))
		r.writePlain("    %s\n", t.Target)
	}
	return nil
}

// TasksShow prints one persisted task with its items, optionally exporting CSV and JSON files.
func (r *Runner) TasksShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}

	repo, closeDB, err := r.openRepository()
	if err != nil {
		return err
	}
	defer closeDB()

	rec, err := repo.Get(id)
	if err != nil {
		return err
	}

	if cmd.Bool("export") {
		res, err := formatter.WriteExport(rec.Snapshot, cmd.String("output"))
		if err != nil {
			return err
		}
		r.logger.Info("task exported", "items", res.ItemsFile, "snapshot", res.SnapshotFile)
		r.writePlainln("✓ Exported %s and %s", res.ItemsFile, res.SnapshotFile)
		return nil
	}
	return r.printResult(rec.Snapshot, cmd.Bool("json"), cmd.Bool("pretty"))
}

// TasksDelete removes a task from history. Downloaded files are kept.
func (r *Runner) TasksDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: id", shared.ErrMissingArgument)
	}

	repo, closeDB, err := r.openRepository()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := repo.Delete(id); err != nil {
		return err
	}
	if archive := filepath.Join(r.config.Downloads.TasksPath(), id+".zip"); fileExists(archive) {
		if err := os.Remove(archive); err != nil {
			r.logger.Warn("failed to remove archive", "path", archive, "error", err)
		}
	}
	return r.writePlain("✓ Deleted %s\n", id)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
