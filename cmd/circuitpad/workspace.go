package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/circuitpad/internal/apperror"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/workspace"
)

func newNewCmd(e *env) *cobra.Command {
	var (
		dir       string
		template  string
		isPrivate bool
	)
	cmd := &cobra.Command{
		Use:   "new <name>",
		Short: "Publish a new package from a template",
		Long: fmt.Sprintf(`Create a package from a starter template and pull it into a directory
named after the package.

Templates: %s

Examples:
  circuitpad new usb-c
  circuitpad new my-footprint --template blank-footprint --private`, strings.Join(workspace.Templates(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if dir == "" {
				dir = name
			}
			if err := ensureEmpty(dir); err != nil {
				return err
			}
			ws, err := e.newWorkspace()
			if err != nil {
				return err
			}
			if err := ws.Load(cmd.Context(), workspace.Target{Template: template}); err != nil {
				return err
			}
			pkg, err := ws.Publish(cmd.Context(), name, isPrivate)
			if err != nil {
				return err
			}
			if err := writeFiles(dir, ws.Files(), nil); err != nil {
				return err
			}
			if err := persist(dir, ws); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s in %s\n", pkg.Name(), dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "target directory (default: the package name)")
	cmd.Flags().StringVarP(&template, "template", "t", "blank-circuit-board", "starter template")
	cmd.Flags().BoolVar(&isPrivate, "private", false, "create a private package")
	return cmd
}

func newPullCmd(e *env) *cobra.Command {
	var (
		dir     string
		version string
		file    string
	)
	cmd := &cobra.Command{
		Use:   "pull <owner/name | package_id>",
		Short: "Download a package into a directory",
		Long: `Download every file of a package release and start tracking changes.

Examples:
  circuitpad pull alice/usb-c
  circuitpad pull alice/usb-c --version 1.0.0 --dir usb-c-1.0.0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := workspace.Target{Version: version, FilePath: file}
			ref := args[0]
			if strings.Contains(ref, "/") {
				target.Name = ref
			} else {
				target.PackageID = ref
			}

			ws, err := e.newWorkspace()
			if err != nil {
				return err
			}
			if err := ws.Load(cmd.Context(), target); err != nil {
				return err
			}
			pkg := ws.Package()
			if dir == "" {
				dir = pkg.UnscopedName
			}
			if err := ensureEmpty(dir); err != nil {
				return err
			}
			if err := writeFiles(dir, ws.Files(), nil); err != nil {
				return err
			}
			if err := persist(dir, ws); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Pulled %s (%d files) into %s\n", pkg.Name(), len(ws.Files()), dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "C", "", "target directory (default: the package name)")
	cmd.Flags().StringVar(&version, "version", "", "release version (default: latest)")
	cmd.Flags().StringVar(&file, "file", "", "file to mark as current")
	return cmd
}

func newStatusCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openLocal(e, dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			name := "(unpublished)"
			if pkg := ws.Package(); pkg != nil {
				name = pkg.Name()
				if pkg.IsPrivate {
					name += " [private]"
				}
			}
			_, _ = fmt.Fprintf(out, "Package %s\n", name)

			if ws.State() == workspace.Clean {
				_, _ = fmt.Fprintln(out, "nothing to save, workspace clean")
				return nil
			}

			known := make(map[string]bool)
			for _, f := range ws.Snapshot().Initial {
				known[f.Path] = true
			}
			changed, removed := ws.Changes()
			sort.Strings(changed)
			sort.Strings(removed)
			_, _ = fmt.Fprintln(out, "Changes not saved:")
			for _, p := range changed {
				label := "modified:"
				if !known[p] {
					label = "new file:"
				}
				_, _ = fmt.Fprintf(out, "  %s  %s\n", label, p)
			}
			for _, p := range removed {
				_, _ = fmt.Fprintf(out, "  deleted:   %s\n", p)
			}
			return nil
		},
	}
	dirFlag(cmd, &dir)
	return cmd
}

func newSaveCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Upload local changes",
		Long: `Upload every changed file and delete every removed file. Hidden files
(node_modules, .git, dist, .env, lockfiles) are never uploaded.

Files that fail are reported and stay unsaved; the rest are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openLocal(e, dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			res, saveErr := ws.Save(cmd.Context())
			if res.Count() > 0 {
				if err := persist(dir, ws); err != nil {
					return err
				}
			}
			switch {
			case res.Count() == 0 && len(res.Failed) == 0 && saveErr == nil:
				_, _ = fmt.Fprintln(out, "Nothing to save")
			case res.Count() > 0:
				_, _ = fmt.Fprintf(out, "Saved %d %s\n", res.Count(), plural(res.Count(), "change", "changes"))
			}
			for _, fe := range res.Failed {
				_, _ = fmt.Fprintf(out, "  failed to %s %s: %v\n", fe.Op, fe.Path, fe.Err)
			}
			return saveErr
		},
	}
	dirFlag(cmd, &dir)
	return cmd
}

func newDiscardCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "discard",
		Short: "Throw away local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openLocal(e, dir)
			if err != nil {
				return err
			}
			before := ws.Files()
			if err := ws.Discard(); err != nil {
				return err
			}
			if err := writeFiles(dir, ws.Files(), before); err != nil {
				return err
			}
			if err := persist(dir, ws); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Discarded local changes")
			return nil
		},
	}
	dirFlag(cmd, &dir)
	return cmd
}

func newForkCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "fork",
		Short: "Copy the package to your account and continue there",
		Long: `Fork the package under the logged-in account. The workspace switches to
the fork; local changes are kept and can be saved to the fork.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, err := openLocal(e, dir)
			if err != nil {
				return err
			}
			fork, err := ws.Fork(cmd.Context())
			if err != nil {
				return err
			}
			if err := persist(dir, ws); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Forked to %s\n", fork.Name())
			return nil
		},
	}
	dirFlag(cmd, &dir)
	return cmd
}

func newRenameCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "rename <name>",
		Short: "Rename the package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openLocal(e, dir)
			if err != nil {
				return err
			}
			changed, err := ws.Rename(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !changed {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Name unchanged")
				return nil
			}
			if err := persist(dir, ws); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Renamed to %s\n", ws.Package().Name())
			return nil
		},
	}
	dirFlag(cmd, &dir)
	return cmd
}

func newSetTypeCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:       "set-type <board|package|model|footprint>",
		Short:     "Change the package type",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"board", "package", "model", "footprint"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openLocal(e, dir)
			if err != nil {
				return err
			}
			if err := ws.SetType(cmd.Context(), model.PackageType(args[0])); err != nil {
				return err
			}
			if err := persist(dir, ws); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is now a %s\n", ws.Package().Name(), args[0])
			return nil
		},
	}
	dirFlag(cmd, &dir)
	return cmd
}

func newSetPrivateCmd(e *env) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "set-private <true|false>",
		Short: "Change the package visibility",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			private, err := strconv.ParseBool(args[0])
			if err != nil {
				return apperror.ValidationFailed("is_private", fmt.Sprintf("expected true or false, got %q", args[0]))
			}
			ws, err := openLocal(e, dir)
			if err != nil {
				return err
			}
			if err := ws.SetPrivate(cmd.Context(), private); err != nil {
				return err
			}
			if err := persist(dir, ws); err != nil {
				return err
			}
			visibility := "public"
			if private {
				visibility = "private"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", ws.Package().Name(), visibility)
			return nil
		},
	}
	dirFlag(cmd, &dir)
	return cmd
}

// ensureEmpty refuses to pull over an existing workspace or a non-empty
// directory.
func ensureEmpty(dir string) error {
	if _, err := os.Stat(statePath(dir)); err == nil {
		return fmt.Errorf("%s already holds a workspace", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("%s is not empty", filepath.Clean(dir))
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
