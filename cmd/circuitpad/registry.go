package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/circuitpad/internal/client"
	"github.com/sakif/circuitpad/internal/footprint"
	"github.com/sakif/circuitpad/internal/model"
	"github.com/sakif/circuitpad/internal/share"
)

func newDomainsCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domains",
		Short: "Inspect package domains",
	}

	var (
		dir   string
		query client.DomainQuery
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List the domains pointing at a package, release or build",
		Long: `List up to 100 domains, newest first. Filters are combined; without
any filter the package of the workspace in --dir is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if query == (client.DomainQuery{}) {
				ws, err := openLocal(e, dir)
				if err != nil {
					if errors.Is(err, errNotWorkspace) {
						return fmt.Errorf("pass --package-id, --package-release-id or --package-build-id, or run inside a workspace")
					}
					return err
				}
				if pkg := ws.Package(); pkg != nil {
					query.PackageID = pkg.ID
				}
			}
			if err := e.connect(); err != nil {
				return err
			}
			domains, err := e.api.ListDomains(cmd.Context(), query)
			if err != nil {
				return err
			}
			if len(domains) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No domains")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "DOMAIN\tPOINTS TO\tTARGET\tCREATED")
			for _, d := range domains {
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					d.FullyQualifiedDomainName, d.PointsTo, domainTarget(d), d.CreatedAt.Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	dirFlag(list, &dir)
	list.Flags().StringVar(&query.PackageID, "package-id", "", "filter by package")
	list.Flags().StringVar(&query.PackageReleaseID, "package-release-id", "", "filter by release")
	list.Flags().StringVar(&query.PackageBuildID, "package-build-id", "", "filter by build")

	cmd.AddCommand(list)
	return cmd
}

func domainTarget(d model.PublicPackageDomain) string {
	switch {
	case d.PackageBuildID != "":
		return d.PackageBuildID
	case d.PackageReleaseID != "":
		return d.PackageReleaseID
	case d.Tag != "":
		return d.Tag
	default:
		return "-"
	}
}

func newFootprintCmd() *cobra.Command {
	var (
		sets   []string
		params bool
	)
	cmd := &cobra.Command{
		Use:   "footprint <footprint>",
		Short: "Normalize or edit a footprint string",
		Long: `Parse a footprint string, apply edits and print the canonical form.

--set key=value changes a parameter, --set key=true or key=false turns a
flag on or off, and --set pins=N changes the pin count.

Examples:
  circuitpad footprint soic8_w5.3mm_p1.27mm --set w=7.5mm
  circuitpad footprint qfn32_p0.5mm --set thermalpad=true --params`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fp, err := footprint.Parse(args[0])
			if err != nil {
				return err
			}
			for _, s := range sets {
				key, value, _ := strings.Cut(s, "=")
				switch strings.ToLower(strings.TrimSpace(value)) {
				case "true":
					err = fp.SetBool(key, true)
				case "false":
					err = fp.SetBool(key, false)
				default:
					err = fp.Set(key, value)
				}
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, fp.String())
			if !params {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintf(tw, "fn\ttext\t%s\n", fp.Fn)
			if fp.Pins > 0 {
				_, _ = fmt.Fprintf(tw, "pins\tnumber\t%d\n", fp.Pins)
			}
			for _, p := range fp.Params {
				value := p.Value()
				if p.Kind == footprint.Bool {
					value = "true"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Key, p.Kind, value)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "key=value edit, repeatable")
	cmd.Flags().BoolVar(&params, "params", false, "also list the parameters")
	return cmd
}

func newShareCmd(e *env) *cobra.Command {
	var (
		dir     string
		version string
	)
	cmd := &cobra.Command{
		Use:   "share [owner/name]",
		Short: "Print embed, import and install snippets",
		Long: `Print the iframe, import and install snippets for a package. Without an
argument the package of the workspace in --dir is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				ws, err := openLocal(e, dir)
				if err != nil {
					return err
				}
				pkg := ws.Package()
				if pkg == nil {
					return fmt.Errorf("the workspace is not published yet")
				}
				name = pkg.Name()
			}

			s, err := share.For(e.cfg.EmbedBaseURL, name, version)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Embed:\n  %s\n", s.Iframe)
			_, _ = fmt.Fprintf(out, "Import:\n  %s\n", s.Import)
			_, _ = fmt.Fprintf(out, "Install:\n  %s\n", s.Install)
			return nil
		},
	}
	dirFlag(cmd, &dir)
	cmd.Flags().StringVar(&version, "version", "", "pin a release version")
	return cmd
}

func newReleaseCmd(e *env) *cobra.Command {
	var (
		dir      string
		latest   bool
		wait     bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "release <version>",
		Short: "Tag the saved files as a new release and build it",
		Long: `Create a release from the latest saved files. Unsaved local changes are
not included; run save first.

Examples:
  circuitpad release 1.0.0 --latest
  circuitpad release 1.0.1 --wait`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openLocal(e, dir)
			if err != nil {
				return err
			}
			pkg := ws.Package()
			if pkg == nil {
				return fmt.Errorf("the workspace is not published yet")
			}
			out := cmd.OutOrStdout()
			if ws.HasUnsavedChanges() {
				_, _ = fmt.Fprintln(out, "Warning: unsaved changes are not part of the release")
			}

			rel, err := e.api.CreateRelease(cmd.Context(), client.CreateReleaseRequest{
				PackageID: pkg.ID,
				Version:   args[0],
				IsLatest:  latest,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Released %s@%s, build %s\n", pkg.Name(), rel.Version, rel.BuildStatus)
			if !wait {
				return nil
			}

			rel, err = e.api.WaitForBuild(cmd.Context(), rel.ID, interval)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "Build %s\n", rel.BuildStatus)
			if rel.BuildStatus == model.BuildError {
				if rel.BuildLogs != "" {
					_, _ = fmt.Fprintln(out, rel.BuildLogs)
				}
				return fmt.Errorf("build of %s@%s failed", pkg.Name(), rel.Version)
			}
			return nil
		},
	}
	dirFlag(cmd, &dir)
	cmd.Flags().BoolVar(&latest, "latest", false, "mark the release as latest")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the build to finish")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "build status poll interval")
	return cmd
}
