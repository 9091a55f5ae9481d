package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/circuitpad/internal/client"
	"github.com/sakif/circuitpad/internal/config"
	"github.com/sakif/circuitpad/internal/session"
	"github.com/sakif/circuitpad/internal/workspace"
)

// env is shared by every command of one invocation. The session store and
// the API client are opened on first use so offline commands never touch
// them.
type env struct {
	cfg    *config.CLI
	logger *slog.Logger
	stderr io.Writer

	sessions *session.Store
	api      *client.Client
}

// connect opens the session store and the API client.
func (e *env) connect() error {
	if e.api != nil {
		return nil
	}
	store, err := session.Open(e.cfg.SessionPath)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	e.sessions = store
	e.api = client.New(e.cfg.APIURL, store, e.logger)
	return nil
}

// current returns the logged-in session, or nil.
func (e *env) current() (*session.Session, error) {
	if err := e.connect(); err != nil {
		return nil, err
	}
	sess, err := e.sessions.Load()
	if errors.Is(err, session.ErrNoSession) {
		return nil, nil
	}
	return sess, err
}

func (e *env) newWorkspace() (*workspace.Workspace, error) {
	sess, err := e.current()
	if err != nil {
		return nil, err
	}
	var actor string
	if sess != nil {
		actor = sess.AccountID
	}
	return workspace.New(workspace.Options{
		API:     e.api,
		ActorID: actor,
		Logger:  e.logger,
		OnSaved: func(res workspace.SaveResult) {
			e.logger.Debug("save finished", slog.Int("changes", res.Count()))
		},
	}), nil
}

func (e *env) close() {
	if e.sessions != nil {
		if err := e.sessions.Close(); err != nil {
			e.logger.Warn("failed to close session store", slog.String("error", err.Error()))
		}
	}
}

func newRootCmd(e *env) *cobra.Command {
	var (
		configFile string
		verbose    bool
	)

	root := &cobra.Command{
		Use:   "circuitpad",
		Short: "Edit circuit packages from the command line",
		Long: `circuitpad pulls packages from a circuitpad registry into a local
directory, tracks what changed, and saves the changes back.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.New(configFile)
			if err != nil {
				return err
			}
			for key, flag := range map[string]string{
				"api_url":        "api-url",
				"session_path":   "session-path",
				"embed_base_url": "embed-base-url",
			} {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("binding --%s: %w", flag, err)
				}
			}
			e.cfg = config.LoadCLI(v)

			level := e.cfg.LogLevel
			if level == "" || level == "info" {
				level = "warn"
			}
			if verbose {
				level = "debug"
			}
			e.logger = config.NewLogger(e.stderr, level, "text")
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (yaml, toml or json)")
	flags.String("api-url", "", "registry API URL (env API_URL)")
	flags.String("session-path", "", "where the login is stored (env SESSION_PATH)")
	flags.String("embed-base-url", "", "base URL used in iframe snippets (env EMBED_BASE_URL)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log requests and progress to stderr")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newWhoamiCmd(e),
		newNewCmd(e),
		newPullCmd(e),
		newStatusCmd(e),
		newSaveCmd(e),
		newDiscardCmd(e),
		newForkCmd(e),
		newRenameCmd(e),
		newSetTypeCmd(e),
		newSetPrivateCmd(e),
		newDomainsCmd(e),
		newFootprintCmd(),
		newShareCmd(e),
		newReleaseCmd(e),
	)
	return root
}

// execute runs one invocation and prints the error, if any, to stderr.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	e := &env{stderr: stderr, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	defer e.close()

	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return err
	}
	return nil
}

// dirFlag adds the --dir flag shared by the workspace commands.
func dirFlag(cmd *cobra.Command, dir *string) {
	cmd.Flags().StringVarP(dir, "dir", "C", ".", "workspace directory")
}
