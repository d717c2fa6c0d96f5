package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/csheth/shiyuan/internal/notes"
	"github.com/csheth/shiyuan/internal/poems"
)

var poemIDPattern = regexp.MustCompile(`^[0-9a-f]{16}$`)

func newNotesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Manage poem notes",
	}
	cmd.AddCommand(
		newNotesListCmd(root),
		newNotesAddCmd(root),
		newNotesDeleteCmd(root),
		newNotesExportCmd(root),
		newNotesImportCmd(root),
	)
	return cmd
}

// resolvePoem maps a poem ID or exact title to a poem. IDs that are not in
// the catalog are accepted as-is so notes stay reachable offline.
func resolvePoem(ctx context.Context, sess *session, ref string) (poems.Poem, error) {
	ref = strings.TrimSpace(ref)
	catalog := sess.loadCatalog(ctx)
	if poem, ok := sess.catalog.Lookup(ref); ok {
		return poem, nil
	}
	var matches []poems.Poem
	for _, poem := range catalog {
		if poem.Title == ref {
			matches = append(matches, poem)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		if poemIDPattern.MatchString(ref) {
			return poems.Poem{ID: ref, Title: ref}, nil
		}
		return poems.Poem{}, fmt.Errorf("no poem titled or identified by %q", ref)
	default:
		choices := make([]string, 0, len(matches))
		for _, poem := range matches {
			choices = append(choices, fmt.Sprintf("%s (%s)", poem.ID, poem.Byline()))
		}
		return poems.Poem{}, fmt.Errorf("%q is ambiguous, use an id: %s", ref, strings.Join(choices, ", "))
	}
}

func newNotesListCmd(root *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [title|id]",
		Short: "List notes for one poem, or all notes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := root.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			var list []notes.Note
			if len(args) == 0 {
				sess.loadCatalog(ctx)
				list = sess.notes.All(ctx)
			} else {
				poem, err := resolvePoem(ctx, sess, args[0])
				if err != nil {
					return err
				}
				list = sess.notes.ListForPoem(ctx, poem.ID)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "no notes")
				return nil
			}
			for idx, note := range list {
				prefix := ""
				if len(args) == 0 {
					prefix = note.PoemID + "  "
				}
				fmt.Fprintf(out, "%d. %s%s  (%s)\n", idx+1, prefix, note.Preview(notePreviewWidth), note.CreatedAt.Display("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output JSON")
	return cmd
}

const notePreviewWidth = 72

func newNotesAddCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <title|id> <text...>",
		Short: "Add a note to a poem",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := root.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			poem, err := resolvePoem(ctx, sess, args[0])
			if err != nil {
				return err
			}
			note, ok, err := sess.notes.Add(ctx, poem.ID, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "empty note ignored")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "note %s added to %s\n", note.ID, poem.Title)
			return nil
		},
	}
}

func newNotesDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <title|id> <number>",
		Short: "Delete a poem's note by its number in `notes list`",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			number, err := strconv.Atoi(args[1])
			if err != nil || number < 1 {
				return fmt.Errorf("invalid note number %q", args[1])
			}
			ctx := cmd.Context()
			sess, err := root.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			poem, err := resolvePoem(ctx, sess, args[0])
			if err != nil {
				return err
			}
			if err := sess.notes.Delete(ctx, poem.ID, number-1); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "note %d of %s deleted\n", number, poem.Title)
			return nil
		},
	}
}

func newNotesExportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Export every note as JSON (default " + notes.ExportFileName + ", - for stdout)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := notes.ExportFileName
			if len(args) == 1 {
				path = args[0]
			}
			ctx := cmd.Context()
			sess, err := root.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			if path == "-" {
				return sess.notes.ExportAll(ctx, cmd.OutOrStdout())
			}
			file, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := sess.notes.ExportAll(ctx, file); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d notes to %s\n", len(sess.notes.All(ctx)), path)
			return nil
		},
	}
}

func newNotesImportCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Replace every note with the contents of a JSON export (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := root.openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			var input io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				input = file
			}
			if err := sess.notes.ImportAll(ctx, input); err != nil {
				if errors.Is(err, notes.ErrInvalidImport) {
					return fmt.Errorf("import failed, notes unchanged: %w", err)
				}
				return err
			}
			sess.catalog.Load(ctx)
			migrated := sess.migrateNotes(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d notes\n", len(sess.notes.All(ctx)))
			if migrated > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %d title-keyed notes\n", migrated)
			}
			return nil
		},
	}
}
