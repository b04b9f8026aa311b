// Package cmd implements the wishdo command line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"wishdo/backend"
	"wishdo/backend/rest"
	"wishdo/internal/capability"
	"wishdo/internal/config"
	"wishdo/internal/engine"
	"wishdo/internal/kv"
	"wishdo/internal/render"
	"wishdo/internal/session"
	"wishdo/internal/utils"
	"wishdo/internal/wishlist"
)

// Build information, set at build time via ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Options carries overrides for tests: a fixed config path, an in-memory
// keyring, and a scripted stdin. The zero value uses the real environment.
type Options struct {
	ConfigPath string
	APIURL     string
	DataDir    string
	Keyring    session.Keyring
	Stdin      io.Reader
}

// Execute runs the CLI with the given arguments and IO writers.
func Execute(args []string, stdout, stderr io.Writer, opts *Options) int {
	rootCmd := NewWishdo(stdout, stderr, opts)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// outputErrorJSON writes an error as a JSON object.
func outputErrorJSON(err error, w io.Writer) {
	payload := map[string]string{"error": err.Error()}
	data, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`+"\n", err.Error())
		return
	}
	_, _ = fmt.Fprintln(w, string(data))
}

// app holds the wired-up collaborators one command invocation needs.
type app struct {
	cfg     *config.Config
	store   kv.Store
	session *session.Provider
	client  *rest.Client
	engine  *engine.Engine
	stdin   io.Reader

	closers []func()
}

// newApp loads the config and wires the cache, session, API client and
// list engine together.
func newApp(opts *Options) (*app, error) {
	if opts == nil {
		opts = &Options{}
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.APIURL != "" {
		cfg.Server.URL = opts.APIURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	utils.SetVerboseMode(cfg.Logging.Verbose)

	a := &app{cfg: cfg}

	cachePath := cfg.CachePath()
	if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := kv.NewSQLite(cachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { _ = store.Close() })

	if opts.Keyring != nil {
		a.session = session.NewProvider(session.WithKeyring(opts.Keyring))
	} else {
		a.session = session.NewProvider()
	}

	client, err := rest.New(rest.Config{
		BaseURL:         cfg.Server.URL,
		TokenFunc:       a.session.Token,
		MaxRetries:      cfg.Server.RateLimitRetries,
		EnableRateLimit: cfg.Server.RateLimitRetries > 0,
	})
	if err != nil {
		return nil, err
	}
	a.client = client
	a.closers = append(a.closers, func() { _ = client.Close() })

	a.engine = engine.New(engine.Config{
		Repo:       client,
		Session:    a.session,
		Wishlist:   wishlist.New(store),
		Capability: capability.New(store),
		Host:       hostOf(cfg.Server.URL),
		PageSize:   cfg.PageSize,
	})
	a.closers = append(a.closers, a.engine.Close)

	a.stdin = opts.Stdin
	if a.stdin == nil {
		a.stdin = os.Stdin
	}

	return a, nil
}

// Close releases everything newApp opened, most recent first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// requireSession rejects mutating commands when nobody is logged in. The
// server would reject them anyway; failing locally gives a clearer message.
func (a *app) requireSession(action string) error {
	if a.session.Token() == "" {
		return utils.ErrLoginRequired(action)
	}
	return nil
}

// decorate turns low-level API failures into actionable messages.
func (a *app) decorate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case backend.IsNetwork(err):
		return utils.ErrServerUnreachable(a.cfg.Server.URL, err.Error())
	case backend.IsUnauthorized(err) && a.session.Token() != "":
		return utils.ErrSessionExpired()
	}
	return err
}

// hostOf extracts the host part of the API URL for the capability cache key.
func hostOf(apiURL string) string {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return apiURL
	}
	return u.Host
}

// NewWishdo creates the root command with injectable IO.
func NewWishdo(stdout, stderr io.Writer, opts *Options) *cobra.Command {
	if opts == nil {
		opts = &Options{}
	}

	cmd := &cobra.Command{
		Use:     "wishdo",
		Short:   "A todo client with starring and wishlists",
		Long:    "wishdo manages your tasks on a remote todo service, with filtering,\nsearch, and a star wishlist that works even on servers without a star API.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().String("config", "", "Path to config file")

	cmd.AddCommand(newListCmd(stdout, opts))
	cmd.AddCommand(newAddCmd(stdout, opts))
	cmd.AddCommand(newDoneCmd(stdout, opts))
	cmd.AddCommand(newEditCmd(stdout, opts))
	cmd.AddCommand(newRmCmd(stdout, opts))
	cmd.AddCommand(newClearCompletedCmd(stdout, opts))
	cmd.AddCommand(newStarCmd(stdout, opts, true))
	cmd.AddCommand(newStarCmd(stdout, opts, false))
	cmd.AddCommand(newWishlistCmd(stdout, opts))
	cmd.AddCommand(newLoginCmd(stdout, stderr, opts))
	cmd.AddCommand(newLogoutCmd(stdout, opts))
	cmd.AddCommand(newRegisterCmd(stdout, stderr, opts))
	cmd.AddCommand(newWhoamiCmd(stdout, opts))
	cmd.AddCommand(newTUICmd(stderr, opts))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// openApp builds the app for a command run, applying persistent flags.
func openApp(cmd *cobra.Command, opts *Options) (*app, error) {
	runOpts := *opts
	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		runOpts.ConfigPath = configPath
	}

	a, err := newApp(&runOpts)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		utils.SetVerboseMode(true)
	}
	return a, nil
}

// newListCmd creates the 'list' command.
func newListCmd(stdout io.Writer, opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long:  "Fetch tasks from the server and display them with the given filters.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := applyViewFlags(cmd, a.engine); err != nil {
				return err
			}

			ctx := context.Background()
			if err := a.engine.Refresh(ctx); err != nil {
				return a.decorate(err)
			}

			snap := a.engine.Snapshot()
			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return render.TasksJSON(stdout, snap.Tasks, a.engine.Starred)
			}
			render.Tasks(stdout, snap.Tasks, a.engine.Starred)
			render.Stats(stdout, snap)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("search", "s", "", "Filter by substring of the task body")
	cmd.Flags().String("status", "all", "Filter by status (all, active, completed)")
	cmd.Flags().StringP("priority", "p", "", "Filter by priority (low, medium, high)")
	cmd.Flags().String("sort", "newest", "Sort order (newest, oldest, due, due-desc)")
	cmd.Flags().Int("page", 1, "Page to display")
	cmd.Flags().Bool("starred", false, "Show only starred tasks")

	return cmd
}

// applyViewFlags pushes the list command's filter flags into the engine.
// Page is set last so the filter-change page reset doesn't clobber it.
func applyViewFlags(cmd *cobra.Command, e *engine.Engine) error {
	if search, _ := cmd.Flags().GetString("search"); search != "" {
		e.SetSearch(search)
	}

	statusFlag, _ := cmd.Flags().GetString("status")
	status, ok := backend.ParseStatus(statusFlag)
	if !ok {
		return fmt.Errorf("invalid status filter: %s", statusFlag)
	}
	e.SetStatus(status)

	priorityFlag, _ := cmd.Flags().GetString("priority")
	priority, ok := backend.ParsePriority(priorityFlag)
	if !ok {
		return fmt.Errorf("invalid priority filter: %s", priorityFlag)
	}
	e.SetPriority(priority)

	sortFlag, _ := cmd.Flags().GetString("sort")
	order, ok := engine.ParseSortOrder(sortFlag)
	if !ok {
		return fmt.Errorf("invalid sort order: %s", sortFlag)
	}
	e.SetSortOrder(order)

	if starred, _ := cmd.Flags().GetBool("starred"); starred {
		e.SetStarredOnly(true)
	}

	if page, _ := cmd.Flags().GetInt("page"); page > 0 {
		e.SetPage(page)
	}

	return nil
}

// newAddCmd creates the 'add' command.
func newAddCmd(stdout io.Writer, opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [body]",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession("adding tasks"); err != nil {
				return err
			}

			payload := backend.CreatePayload{Body: strings.Join(args, " ")}

			priorityFlag, _ := cmd.Flags().GetString("priority")
			priority, ok := backend.ParsePriority(priorityFlag)
			if !ok {
				return fmt.Errorf("invalid priority: %s", priorityFlag)
			}
			payload.Priority = priority

			dueFlag, _ := cmd.Flags().GetString("due")
			due, err := utils.ParseDateFlag(dueFlag)
			if err != nil {
				return err
			}
			payload.DueDate = due

			task, err := a.engine.Add(context.Background(), payload)
			if err != nil {
				return a.decorate(err)
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return render.TasksJSON(stdout, []backend.Task{*task}, a.engine.Starred)
			}
			_, _ = fmt.Fprintf(stdout, "Added task: %s\n", task.Body)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("priority", "p", "", "Task priority (low, medium, high)")
	cmd.Flags().String("due", "", "Due date (YYYY-MM-DD, today, tomorrow, +7d, +2w, +1m)")

	return cmd
}

// resolveTask finds a task by ID, ID prefix, or unique body substring in
// the freshly loaded collection.
func resolveTask(a *app, ref string) (*backend.Task, error) {
	all := a.engine.AllTasks()

	for i := range all {
		if all[i].ID == ref {
			return &all[i], nil
		}
	}

	var matches []*backend.Task
	lowered := strings.ToLower(ref)
	for i := range all {
		if strings.HasPrefix(all[i].ID, ref) ||
			strings.Contains(strings.ToLower(all[i].Body), lowered) {
			matches = append(matches, &all[i])
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no task matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%q matches %d tasks, be more specific", ref, len(matches))
	}
}

// loadAndResolve refreshes the collection and resolves a task reference.
func loadAndResolve(ctx context.Context, a *app, ref string) (*backend.Task, error) {
	if err := a.engine.Refresh(ctx); err != nil {
		return nil, a.decorate(err)
	}
	return resolveTask(a, ref)
}

// newDoneCmd creates the 'done' command.
func newDoneCmd(stdout io.Writer, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "done [task]",
		Short: "Toggle a task's completion",
		Long:  "Toggle completion of the task matching the given ID or body text.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession("completing tasks"); err != nil {
				return err
			}

			ctx := context.Background()
			task, err := loadAndResolve(ctx, a, args[0])
			if err != nil {
				return err
			}

			if err := a.engine.ToggleComplete(ctx, task.ID); err != nil {
				return a.decorate(err)
			}

			state := "completed"
			if task.Completed {
				state = "active"
			}
			_, _ = fmt.Fprintf(stdout, "Marked %s: %s\n", state, task.Body)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newEditCmd creates the 'edit' command.
func newEditCmd(stdout io.Writer, opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit [task]",
		Short: "Edit a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession("editing tasks"); err != nil {
				return err
			}

			var updates backend.Updates

			if cmd.Flags().Changed("body") {
				body, _ := cmd.Flags().GetString("body")
				updates.Body = &body
			}
			if cmd.Flags().Changed("priority") {
				priorityFlag, _ := cmd.Flags().GetString("priority")
				priority, ok := backend.ParsePriority(priorityFlag)
				if !ok {
					return fmt.Errorf("invalid priority: %s", priorityFlag)
				}
				updates.Priority = &priority
			}
			if cmd.Flags().Changed("due") {
				dueFlag, _ := cmd.Flags().GetString("due")
				if dueFlag == "" {
					updates.ClearDueDate = true
				} else {
					due, err := utils.ParseDateFlag(dueFlag)
					if err != nil {
						return err
					}
					updates.DueDate = due
				}
			}

			if updates.IsEmpty() {
				return fmt.Errorf("nothing to change: pass --body, --priority or --due")
			}

			ctx := context.Background()
			task, err := loadAndResolve(ctx, a, args[0])
			if err != nil {
				return err
			}

			if err := a.engine.Edit(ctx, task.ID, updates); err != nil {
				return a.decorate(err)
			}

			_, _ = fmt.Fprintf(stdout, "Updated task: %s\n", task.Body)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("body", "", "New task body")
	cmd.Flags().StringP("priority", "p", "", "New priority (low, medium, high)")
	cmd.Flags().String("due", "", "New due date, or \"\" to clear it")

	return cmd
}

// newRmCmd creates the 'rm' command.
func newRmCmd(stdout io.Writer, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "rm [task]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.requireSession("deleting tasks"); err != nil {
				return err
			}

			ctx := context.Background()
			task, err := loadAndResolve(ctx, a, args[0])
			if err != nil {
				return err
			}

			if err := a.engine.Remove(ctx, task.ID); err != nil {
				return a.decorate(err)
			}

			_, _ = fmt.Fprintf(stdout, "Deleted task: %s\n", task.Body)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newClearCompletedCmd creates the 'clear-completed' command.
func newClearCompletedCmd(stdout io.Writer, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Delete all completed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, failed, err := a.engine.ClearCompleted(context.Background())
			if err != nil {
				return a.decorate(err)
			}

			_, _ = fmt.Fprintf(stdout, "Cleared %d completed tasks\n", deleted)
			if failed > 0 {
				_, _ = fmt.Fprintf(stdout, "%d tasks could not be deleted\n", failed)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newStarCmd creates the 'star' or 'unstar' command.
func newStarCmd(stdout io.Writer, opts *Options, desired bool) *cobra.Command {
	use, short, verb := "star [task]", "Star a task", "Starred"
	if !desired {
		use, short, verb = "unstar [task]", "Unstar a task", "Unstarred"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := context.Background()
			task, err := loadAndResolve(ctx, a, args[0])
			if err != nil {
				return err
			}

			if err := a.engine.SetStar(ctx, task.ID, desired); err != nil {
				return a.decorate(err)
			}

			_, _ = fmt.Fprintf(stdout, "%s: %s\n", verb, task.Body)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newWishlistCmd creates the 'wishlist' command, a shorthand for a
// starred-only listing.
func newWishlistCmd(stdout io.Writer, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "wishlist",
		Short: "List starred tasks",
		Long:  "List the tasks you starred, whether the server recorded the star\nor it only lives in the local wishlist.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			a.engine.SetStarredOnly(true)

			if err := a.engine.Refresh(context.Background()); err != nil {
				return a.decorate(err)
			}

			snap := a.engine.Snapshot()
			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return render.TasksJSON(stdout, snap.Tasks, a.engine.Starred)
			}
			if len(snap.Tasks) == 0 {
				_, _ = fmt.Fprintln(stdout, "No starred tasks.")
				return nil
			}
			render.Tasks(stdout, snap.Tasks, a.engine.Starred)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newVersionCmd creates the 'version' command.
func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				data, err := json.Marshal(map[string]string{
					"version": Version,
					"commit":  Commit,
					"built":   BuildDate,
				})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(stdout, string(data))
				return nil
			}

			_, _ = fmt.Fprintf(stdout, "Version: %s\n", Version)
			_, _ = fmt.Fprintf(stdout, "Commit:  %s\n", Commit)
			_, _ = fmt.Fprintf(stdout, "Built:   %s\n", BuildDate)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				_, _ = fmt.Fprintf(stdout, "Go Version: %s\n", runtime.Version())
				_, _ = fmt.Fprintf(stdout, "Platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
