package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/task-orchestrator/internal/config"
	"github.com/hochfrequenz/task-orchestrator/internal/deps"
	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	"github.com/hochfrequenz/task-orchestrator/internal/reconcile"
	"github.com/hochfrequenz/task-orchestrator/internal/runner"
	"github.com/hochfrequenz/task-orchestrator/internal/runstore"
	"github.com/hochfrequenz/task-orchestrator/internal/schedule"
	"github.com/hochfrequenz/task-orchestrator/web/api"
)

var (
	runStoreCode string
	runTaskID    string
	runLogLevel  string
	runConsole   bool
	runTest      bool

	runsTask   string
	runsStatus string
	runsLimit  int

	servePort int
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	brokenStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func init() {
	// run command
	runCmd := &cobra.Command{
		Use:   "run TASK",
		Short: "Run a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}
	runCmd.Flags().StringVar(&runStoreCode, "store-code", "admin", "code of the store to run the task for")
	runCmd.Flags().StringVar(&runTaskID, "id", "", "id of the run (default: current timestamp)")
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "", "log level of the run")
	runCmd.Flags().BoolVarP(&runConsole, "console", "c", false, "log on the console")
	runCmd.Flags().BoolVarP(&runTest, "test", "t", false, "run the task in test mode")
	rootCmd.AddCommand(runCmd)

	// runs command
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		RunE:  runRuns,
	}
	runsCmd.Flags().StringVar(&runsTask, "task", "", "filter by task name")
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by status (running, finished, broken)")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")
	rootCmd.AddCommand(runsCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "reconcile",
		Short: "Finish run records of processes that no longer exist",
		RunE:  runReconcile,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "tasks",
		Short: "List tasks in dependency order",
		RunE:  runTasks,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "schedule",
		Short: "Run tasks on their cron schedule",
		RunE:  runSchedule,
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the admin HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, !runConsole)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.runner.Execute(ctx, runner.InitOptions{
		StoreCode: runStoreCode,
		TaskName:  args[0],
		TaskID:    runTaskID,
		LogLevel:  runLogLevel,
		Console:   runConsole,
		Test:      runTest,
	})
	if err != nil {
		return err
	}

	if c.Success() {
		fmt.Println(successStyle.Render(fmt.Sprintf("Task %s (%s) finished", c.TaskName(), c.TaskID())))
	} else {
		fmt.Println(brokenStyle.Render(fmt.Sprintf("Task %s (%s) finished with errors", c.TaskName(), c.TaskID())))
		for _, f := range c.Failures() {
			fmt.Println(dimStyle.Render("  " + f.Error()))
		}
	}
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := runstore.ListOptions{TaskName: runsTask, Limit: runsLimit}
	if runsStatus != "" {
		status, ok := domain.ParseRunStatus(runsStatus)
		if !ok {
			return fmt.Errorf("invalid status: %s", runsStatus)
		}
		opts.Status = status
	}

	runs, err := a.store.ListRuns(cmd.Context(), opts)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTASK\tRUN ID\tSTORE\tSTATUS\tSTARTED\tDURATION\tMEMORY")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s MB\n",
			r.ID, r.TaskName, r.TaskID, r.StoreCode, renderStatus(r),
			humanize.Time(r.StartAt), r.Duration(now).Round(time.Second), humanize.Comma(r.MaxMemoryUsageMB))
	}
	return w.Flush()
}

func renderStatus(r *domain.Run) string {
	status := string(r.Status())
	if r.Test {
		status += " (test)"
	}
	switch r.Status() {
	case domain.RunFinished:
		return successStyle.Render(status)
	case domain.RunBroken:
		return brokenStyle.Render(status)
	default:
		return runningStyle.Render(status)
	}
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	finished, err := reconcile.NewChecker(a.store, a.logger).Check(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Finished %d stale run(s)\n", len(finished))
	return nil
}

func runTasks(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	names := a.runner.Catalog().Names(a.cfg)
	dependsOn := make(map[string][]string, len(names))
	for _, name := range names {
		dependsOn[name] = domain.ParseTaskList(a.cfg.TaskString(name, "settings", "depends_on", "", true))
	}

	graph := deps.NewGraph(dependsOn)
	order, err := graph.TopologicalSort()
	if err != nil {
		return err
	}

	locks := a.runner.Locks()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tTITLE\tDEPENDS ON\tSTATE")
	for _, name := range order {
		title := a.cfg.TaskString(name, "data", "title", "-", true)
		depList := "-"
		if d := dependsOn[name]; len(d) > 0 {
			depList = fmt.Sprint(d)
		}
		state := dimStyle.Render("idle")
		if running, _ := locks.Probe(name); running {
			state = runningStyle.Render("running")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, title, depList, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for task, missing := range graph.Missing() {
		fmt.Println(brokenStyle.Render(fmt.Sprintf("Task %s depends on unknown task(s) %v", task, missing)))
	}
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := schedule.New(schedule.Launch(a.runner), a.logger)
	if err := sched.Reload(a.cfg.Schedule); err != nil {
		return err
	}

	path := config.ResolvePath(configPath)
	watcher, err := schedule.NewWatcher(path, func() {
		cfg, err := config.Load(path)
		if err != nil {
			a.logger.Error("reloading config failed", "path", path, "error", err)
			return
		}
		if err := sched.Reload(cfg.Schedule); err != nil {
			a.logger.Error("reloading schedule failed", "path", path, "error", err)
		}
	}, a.logger)
	if err != nil {
		a.logger.Warn("config changes will not be picked up", "path", path, "error", err)
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
	}

	for _, e := range sched.Entries() {
		a.logger.Info("scheduled", "task", e.Task, "cron", e.Cron, "next", e.Next.Format(time.RFC3339))
	}

	sched.Start(ctx)
	<-ctx.Done()
	a.logger.Info("stopping scheduler, waiting for running tasks")
	sched.Stop()
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Web.Port
	if servePort != 0 {
		port = servePort
	}
	addr := net.JoinHostPort(a.cfg.Web.Host, strconv.Itoa(port))

	return api.NewServer(a.store, a.runner, addr, a.logger).Start(ctx)
}
