package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytfetch/internal/formatter"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/shared"
	"github.com/desertthunder/ytfetch/internal/tasks"
	"github.com/desertthunder/ytfetch/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/ytfetch-tui.log"

// Download runs one task in the foreground and prints its result.
//
// With --watch the live TUI replaces log output; logs go to a file instead.
func (r *Runner) Download(ctx context.Context, cmd *cli.Command) error {
	target := cmd.StringArg("url")
	if target == "" {
		return fmt.Errorf("%w: url", shared.ErrMissingArgument)
	}

	req := tasks.Request{
		Target:       target,
		MaxItems:     int(cmd.Int("max")),
		AudioOnly:    cmd.Bool("audio"),
		Quality:      cmd.String("quality"),
		ConvertToMP3: cmd.Bool("mp3"),
	}
	if cmd.Bool("no-skip") {
		skip := false
		req.SkipDuplicates = &skip
	}

	watch := cmd.Bool("watch")
	if watch {
		if err := os.MkdirAll(filepath.Dir(tuiLogPath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		fileLogger, err := shared.NewFileLogger(tuiLogPath)
		if err != nil {
			return fmt.Errorf("failed to create file logger: %w", err)
		}
		r.SetLogger(fileLogger)
	}

	st, err := r.build(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	st.refreshProxies(ctx, r)

	task, err := st.orch.Create(req)
	if err != nil {
		return err
	}
	r.logger.Info("task created", "task", task.ID, "target", task.Target, "dir", task.OutputDir)

	var runErr error
	if watch {
		runErr = r.watch(ctx, st, task.ID)
	} else {
		runErr = st.orch.Run(ctx, task.ID)
	}

	snap, err := st.orch.Status(task.ID)
	if err != nil {
		return err
	}
	if err := r.printResult(snap, cmd.Bool("json"), cmd.Bool("pretty")); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("download failed: %w", runErr)
	}
	return nil
}

// watch runs taskID while the TUI follows it through the bridge. Quitting the TUI cancels the run.
func (r *Runner) watch(ctx context.Context, st *stack, taskID string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- st.orch.Run(runCtx, taskID) }()

	model := ui.NewModel(taskID, st.bridge, ui.Opts{})
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		cancel()
		<-done
		return fmt.Errorf("error running TUI: %w", err)
	}

	cancel()
	return <-done
}

func (r *Runner) printResult(snap models.Snapshot, asJSON, pretty bool) error {
	if asJSON {
		return r.writeJSON(snap, pretty)
	}
	r.writePlainHeader(formatter.Summary(snap.Task))
	return r.writePlain("%s\n", formatter.ProgressLog(snap))
}
