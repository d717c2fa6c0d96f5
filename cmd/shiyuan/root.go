package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/csheth/shiyuan/internal/config"
	"github.com/csheth/shiyuan/internal/kv"
	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/poems"
	"github.com/csheth/shiyuan/internal/theme"
)

type rootOptions struct {
	configPath     string
	verbose        bool
	storage        string
	sources        []string
	partialSuccess bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	browse := &browseOptions{root: opts}

	rootCmd := &cobra.Command{
		Use:   "shiyuan",
		Short: "Search classical Chinese poems and keep personal notes",
		Long: `shiyuan loads a poem catalog from remote or local JSON sources, searches it by
title, author or text, and stores your notes and theme in a local slot store
(files, SQLite or Redis).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return browse.run(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.DefaultPath(), "path to the YAML config file")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.StringVar(&opts.storage, "storage", "", "note storage: directory, sqlite://path or redis://host/db")
	flags.StringArrayVar(&opts.sources, "source", nil, "catalog source URL or glob (repeatable)")
	flags.BoolVar(&opts.partialSuccess, "partial-success", false, "keep poems from healthy sources when others fail")
	browse.bindFlags(rootCmd)

	rootCmd.AddCommand(
		newBrowseCmd(opts),
		newSearchCmd(opts),
		newNotesCmd(opts),
		newThemeCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(o.logger)

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Storage = o.storage
	}
	if flags.Changed("source") {
		cfg.Sources = o.sources
	}
	if flags.Changed("partial-success") {
		cfg.PartialSuccess = o.partialSuccess
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	o.logger.Debug("configuration resolved", "storage", cfg.Storage, "sources", strings.Join(cfg.Sources, ","))
	return nil
}

// useLogger redirects package logging, e.g. to a file while the TUI owns the terminal.
func (o *rootOptions) useLogger(w io.Writer) {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(o.logger)
}

// session bundles the services a command works with.
type session struct {
	backend kv.Store
	notes   *notes.Store
	theme   *theme.Preference
	catalog *poems.Catalog
	logger  *slog.Logger
}

func (o *rootOptions) openSession(ctx context.Context) (*session, error) {
	backend, err := kv.Open(ctx, o.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	sources, err := poems.SourcesFor(o.cfg.Sources, o.cfg.SourceOptions())
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	catalogOpts := o.cfg.CatalogOptions()
	catalogOpts.Logger = o.logger
	return &session{
		backend: backend,
		notes:   notes.NewStore(backend, notes.WithSlot(o.cfg.NotesSlot), notes.WithLogger(o.logger)),
		theme:   theme.NewPreference(backend, o.cfg.ThemeSlot, o.logger),
		catalog: poems.NewCatalog(sources, catalogOpts),
		logger:  o.logger,
	}, nil
}

func (s *session) Close() error {
	return s.backend.Close()
}

// loadCatalog loads the poems and migrates title-keyed notes once the real
// catalog is available.
func (s *session) loadCatalog(ctx context.Context) []poems.Poem {
	loaded := s.catalog.Load(ctx)
	s.migrateNotes(ctx)
	return loaded
}

// migrateNotes rekeys title-keyed notes when the real catalog is loaded and
// reports how many were rewritten.
func (s *session) migrateNotes(ctx context.Context) int {
	if !s.catalog.Loaded() {
		return 0
	}
	n, err := s.notes.Rekey(ctx, s.catalog.TitleIndex())
	if err != nil {
		s.logger.Warn("note migration failed", "error", err)
		return 0
	}
	if n > 0 {
		s.logger.Info("migrated title-keyed notes", "count", n)
	}
	return n
}
