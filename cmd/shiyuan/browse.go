package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/tui"
)

type browseOptions struct {
	root        *rootOptions
	noAltScreen bool
	logFile     string
}

func newBrowseCmd(root *rootOptions) *cobra.Command {
	opts := &browseOptions{root: root}
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Open the interactive poem browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd)
		},
	}
	opts.bindFlags(cmd)
	return cmd
}

func (o *browseOptions) bindFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.noAltScreen, "no-alt-screen", false, "disable the alternate screen buffer")
	cmd.Flags().StringVar(&o.logFile, "log-file", defaultLogFile(), "file receiving logs while the browser runs")
}

func defaultLogFile() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "shiyuan", "shiyuan.log")
}

func (o *browseOptions) run(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if o.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(o.logFile), 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		logFile, err := os.OpenFile(o.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		o.root.useLogger(logFile)
	}

	sess, err := o.root.openSession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	applied := sess.theme.Restore(ctx)
	sess.logger.Info("browser starting", "theme", applied.Name, "storage", o.root.cfg.Storage)

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	programOpts := []tea.ProgramOption{tea.WithContext(ctx)}
	if !o.noAltScreen {
		programOpts = append(programOpts, tea.WithAltScreen())
	}
	program := tea.NewProgram(
		tui.New(tui.Config{
			Catalog:    sess.catalog,
			Notes:      sess.notes,
			Theme:      sess.theme,
			ExportPath: filepath.Join(wd, notes.ExportFileName),
			Context:    ctx,
			Logger:     sess.logger,
		}),
		programOpts...,
	)
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("program error: %w", err)
	}
	return nil
}
