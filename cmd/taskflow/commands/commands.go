package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskflow/core/internal/domain/entities"
	"github.com/taskflow/core/internal/infrastructure/config"
	"github.com/taskflow/core/internal/infrastructure/database"
	"github.com/taskflow/core/internal/infrastructure/server"
	"github.com/taskflow/core/internal/ports"
)

// Version is set at build time
var Version = "dev"

// shutdownGrace is used when the configured shutdown timeout is unset
const shutdownGrace = 5 * time.Second

// NewRootCommand creates the taskflow command tree. Storage flags
// override the matching environment variables.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "TaskFlow personal task tracker",
		Long:          "TaskFlow keeps a prioritised, categorised to-do list in local storage.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("backend", config.BackendFile, "storage backend (file, memory, redis, postgres)")
	flags.String("data-file", "", "task file used by the file backend")
	flags.Duration("latency", 0, "simulated store latency per operation")
	v.BindPFlag("storage.backend", flags.Lookup("backend"))
	v.BindPFlag("storage.path", flags.Lookup("data-file"))
	v.BindPFlag("storage.latency", flags.Lookup("latency"))

	rootCmd.AddCommand(
		newListCommand(v),
		newAddCommand(v),
		newDoneCommand(v),
		newRemoveCommand(v),
		newEditCommand(v),
		newClearCommand(v),
		newReorderCommand(v),
		NewServeCommand(v),
		NewMigrateCommand(v),
		NewVersionCommand(),
	)

	return rootCmd
}

// withApp builds the app, loads the collection and runs fn
func withApp(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, v)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.load(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func newListCommand(v *viper.Viper) *cobra.Command {
	var (
		category  string
		search    string
		sortBy    string
		direction string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				if err := applyView(a.manager, category, search, sortBy, direction); err != nil {
					return err
				}

				view := a.manager.View()
				if asJSON {
					return renderJSON(cmd.OutOrStdout(), view)
				}
				return renderView(cmd.OutOrStdout(), view)
			})
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "All", "category filter (All, Work, Personal, Shopping, Health)")
	cmd.Flags().StringVarP(&search, "search", "s", "", "only tasks whose text contains this")
	cmd.Flags().StringVar(&sortBy, "sort", string(entities.SortByDateAdded), "sort key (due-date, priority, date-added, alphabetical)")
	cmd.Flags().StringVar(&direction, "dir", string(entities.SortDesc), "sort direction (asc, desc)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the view as JSON")

	return cmd
}

func applyView(m ports.TaskManager, category, search, sortBy, direction string) error {
	c, err := entities.ParseCategory(category)
	if err != nil {
		return fmt.Errorf("%w: %q", err, category)
	}
	if err := m.SetCategoryFilter(c); err != nil {
		return err
	}

	m.SetSearchQuery(search)

	key, err := entities.ParseSortKey(sortBy)
	if err != nil {
		return fmt.Errorf("%w: %q", err, sortBy)
	}
	dir, err := entities.ParseSortDirection(direction)
	if err != nil {
		return fmt.Errorf("%w: %q", err, direction)
	}
	return m.SetSort(key, dir)
}

func newAddCommand(v *viper.Viper) *cobra.Command {
	var (
		priority string
		category string
		due      string
	)

	cmd := &cobra.Command{
		Use:   "add <text...>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := ports.CreateTaskRequest{Text: strings.Join(args, " ")}

			if priority != "" {
				p, err := entities.ParsePriority(priority)
				if err != nil {
					return fmt.Errorf("%w: %q", err, priority)
				}
				req.Priority = p
			}
			if category != "" {
				c, err := entities.ParseCategory(category)
				if err != nil || c == entities.CategoryAll {
					return fmt.Errorf("%w: %q", entities.ErrInvalidCategory, category)
				}
				req.Category = c
			}
			if due != "" {
				d, err := entities.ParseDate(due)
				if err != nil {
					return err
				}
				req.DueDate = &d
			}

			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				task, err := a.manager.AddTask(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added task %d: %s\n", task.ID, task.Text)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&priority, "priority", "p", "", "priority (High, Medium, Low); default Medium")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category (Work, Personal, Shopping, Health); default Personal")
	cmd.Flags().StringVarP(&due, "due", "d", "", "due date as YYYY-MM-DD")

	return cmd
}

func newDoneCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Toggle a task between completed and open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				task, err := a.manager.ToggleTask(ctx, id)
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %d not found", id)
				}

				state := "open"
				if task.Completed {
					state = "completed"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d marked %s\n", task.ID, state)
				return nil
			})
		},
	}
}

func newRemoveCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				if err := a.manager.DeleteTask(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %d\n", id)
				return nil
			})
		},
	}
}

func newEditCommand(v *viper.Viper) *cobra.Command {
	var (
		text     string
		priority string
		category string
		due      string
		clearDue bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task's text, priority, category or due date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			var req ports.UpdateTaskRequest
			flags := cmd.Flags()
			if flags.Changed("text") {
				req.Text = &text
			}
			if flags.Changed("priority") {
				p, err := entities.ParsePriority(priority)
				if err != nil {
					return fmt.Errorf("%w: %q", err, priority)
				}
				req.Priority = &p
			}
			if flags.Changed("category") {
				c, err := entities.ParseCategory(category)
				if err != nil || c == entities.CategoryAll {
					return fmt.Errorf("%w: %q", entities.ErrInvalidCategory, category)
				}
				req.Category = &c
			}
			if flags.Changed("due") {
				d, err := entities.ParseDate(due)
				if err != nil {
					return err
				}
				req.DueDate = &d
			}
			req.ClearDueDate = clearDue

			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				task, err := a.manager.UpdateTask(ctx, id, req)
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated task %d: %s\n", task.ID, task.Text)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "new text")
	cmd.Flags().StringVarP(&priority, "priority", "p", "", "new priority")
	cmd.Flags().StringVarP(&category, "category", "c", "", "new category")
	cmd.Flags().StringVarP(&due, "due", "d", "", "new due date as YYYY-MM-DD")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "remove the due date")
	cmd.MarkFlagsMutuallyExclusive("due", "clear-due")

	return cmd
}

func newClearCommand(v *viper.Viper) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all completed tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				confirm := ports.Confirmer(ports.AlwaysConfirm)
				if !yes {
					confirm = promptConfirm(cmd)
				}

				removed, err := a.manager.ClearCompleted(ctx, confirm)
				if errors.Is(err, entities.ErrNotConfirmed) {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
				if err != nil {
					return err
				}

				if removed == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No completed tasks to clear")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", plural(removed, "completed task"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")

	return cmd
}

// promptConfirm asks on the command's input stream
func promptConfirm(cmd *cobra.Command) ports.Confirmer {
	return func(count int) bool {
		fmt.Fprintf(cmd.OutOrStdout(), "Delete %s? This cannot be undone. [y/N] ", plural(count, "completed task"))
		answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		default:
			return false
		}
	}
}

func newReorderCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <id...>",
		Short: "Set the manual order of the named tasks",
		Long: "Rearrange the named tasks into the given order. Tasks not named keep " +
			"their positions; the named ones take over the slots they occupied.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				if err := a.manager.ReorderTasks(ctx, ids); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reordered %s\n", plural(len(ids), "task"))
				return nil
			})
		},
	}
}

// NewServeCommand creates the serve command
func NewServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the task manager as a local JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, v, func(ctx context.Context, a *app) error {
				return runServer(ctx, a)
			})
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	srv := server.New(a.cfg, a.manager, a.logger, server.Options{
		Registry: a.registry,
		Checks:   a.checks,
	})

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start(a.cfg.Server.GetAddr())
	}()

	a.logger.Infow("TaskFlow API listening",
		"address", a.cfg.Server.GetAddr(),
		"backend", a.cfg.Storage.Backend,
	)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = shutdownGrace
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return <-errc
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand(v *viper.Viper) *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the schema of the postgres storage backend (up, down, version)",
	}

	for _, direction := range []string{database.MigrateUp, database.MigrateDown} {
		direction := direction
		migrateCmd.AddCommand(&cobra.Command{
			Use:   direction,
			Short: fmt.Sprintf("Run all %s migrations", direction),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withDatabase(v, func(db *database.DB) error {
					if err := db.Migrate(direction); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Migration %s completed successfully\n", direction)
					return nil
				})
			},
		})
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(v, func(db *database.DB) error {
				version, dirty, err := db.MigrationVersion()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
				fmt.Fprintf(cmd.OutOrStdout(), "Dirty: %t\n", dirty)
				return nil
			})
		},
	})

	return migrateCmd
}

func withDatabase(v *viper.Viper, fn func(db *database.DB) error) error {
	cfg, err := config.LoadWith(v)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	return fn(db)
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print TaskFlow version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "TaskFlow %s\n", Version)
		},
	}
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", s)
	}
	return id, nil
}
