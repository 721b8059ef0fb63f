package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kioskcal/internal/capture"
	"kioskcal/internal/config"
	"kioskcal/internal/dashboard"
	"kioskcal/internal/ics"
	appLog "kioskcal/internal/log"
	"kioskcal/internal/termview"
	"kioskcal/internal/web"
)

const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:           "kioskcal",
	Short:         "Calendar timeline dashboard for kiosk displays",
	Long:          "kioskcal fetches ICS calendars, lays out the day and week timelines and serves them to a kiosk page.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard scheduler and HTTP API",
	RunE:  runServe,
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the day or week layout as JSON",
	RunE:  runLayout,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Draw the day or week layout in the terminal",
	RunE:  runPreview,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration and report problems",
	RunE:  runConfig,
}

func init() {
	rootCmd.PersistentFlags().String("config", "/etc/kioskcal/config.yaml", "Path to config file")

	serveCmd.Flags().String("listen", "", "HTTP listen address (overrides config if set)")

	for _, c := range []*cobra.Command{layoutCmd, previewCmd} {
		c.Flags().String("now", "", "Reference time (RFC 3339); defaults to the current time")
		c.Flags().String("view", "day", "View to produce: day or week")
	}
	previewCmd.Flags().Int("width", 100, "Output width in cells")
	previewCmd.Flags().Int("rows-per-hour", 2, "Rows drawn per hour")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		appLog.Error("kioskcal failed", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if lvl, ok := appLog.ParseLevel(cfg.LogLevel); ok {
		appLog.SetLevel(lvl)
	} else {
		appLog.Error("unknown log level, using info", errors.New("invalid log_level"), "log_level", cfg.LogLevel)
	}
	return cfg, nil
}

func sourcesFromConfig(cfg *config.Config) []ics.Source {
	sources := make([]ics.Source, 0, len(cfg.ICS))
	for _, c := range cfg.ICS {
		if c.URL == "" {
			continue
		}
		sources = append(sources, ics.Source{ID: c.CalendarID(), URL: c.URL})
	}
	return sources
}

// newDashboard wires the ICS pipeline into a dashboard service. A nil now
// uses the wall clock.
func newDashboard(cfg *config.Config, now func() time.Time) (*dashboard.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	loader := ics.NewLoader(ics.NewFetcher(cfg.CacheDir), sourcesFromConfig(cfg), loc)

	opts := dashboard.Options{
		Days:        cfg.DaysConfig(),
		ShowAllDay:  cfg.AllDay.Show,
		Location:    loc,
		HorizonDays: cfg.HorizonDays,
		TickSpec:    cfg.TickCron,
		RefreshSpec: cfg.RefreshCron,
		Now:         now,
	}
	if cfg.Capture.Enabled {
		opts.CaptureSpec = cfg.Capture.Schedule
		opts.Capture = capture.Func(capture.FromConfig(cfg))
	}
	return dashboard.New(loader, opts), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		appLog.Error("config has invalid values, defaults were applied", err)
	}

	appLog.Info("kioskcal starting", "version", version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"window_mode", cfg.Window.Mode,
		"refresh", cfg.RefreshCron,
		"tick", cfg.TickCron,
		"days", cfg.MultiDay.NumberOfDays,
		"ics_count", len(cfg.ICS),
		"capture", cfg.Capture.Enabled,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dash, err := newDashboard(cfg, nil)
	if err != nil {
		return err
	}
	if err := dash.Start(ctx); err != nil {
		return err
	}
	defer dash.Stop()

	if err := web.NewServer(cfg, dash).Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	appLog.Info("kioskcal exiting")
	return nil
}

// snapshotFor fetches events once and computes the layouts for --now.
func snapshotFor(cmd *cobra.Command) (*config.Config, dashboard.Snapshot, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, dashboard.Snapshot{}, "", err
	}

	view, _ := cmd.Flags().GetString("view")
	if view != "day" && view != "week" {
		return nil, dashboard.Snapshot{}, "", fmt.Errorf("unknown view %q: use day or week", view)
	}

	now := time.Now()
	if s, _ := cmd.Flags().GetString("now"); s != "" {
		now, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, dashboard.Snapshot{}, "", fmt.Errorf("parsing --now: %w", err)
		}
	}

	dash, err := newDashboard(cfg, func() time.Time { return now })
	if err != nil {
		return nil, dashboard.Snapshot{}, "", err
	}
	if err := dash.Refresh(cmd.Context()); err != nil {
		return nil, dashboard.Snapshot{}, "", err
	}
	return cfg, dash.Snapshot(), view, nil
}

func runLayout(cmd *cobra.Command, args []string) error {
	_, snap, view, err := snapshotFor(cmd)
	if err != nil {
		return err
	}

	var out any = snap.Day
	if view == "week" {
		out = snap.Week
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runPreview(cmd *cobra.Command, args []string) error {
	_, snap, view, err := snapshotFor(cmd)
	if err != nil {
		return err
	}

	width, _ := cmd.Flags().GetInt("width")
	rows, _ := cmd.Flags().GetInt("rows-per-hour")
	opts := termview.Options{Width: width, RowsPerHour: rows}

	if view == "week" {
		fmt.Fprint(cmd.OutOrStdout(), termview.RenderWeek(snap.Week, snap.Events, opts))
	} else {
		fmt.Fprint(cmd.OutOrStdout(), termview.RenderDay(snap.Day, snap.Events, opts))
	}
	return nil
}

func runConfig(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading config: %w", err)
	}

	// Validate the file as written, before Normalize replaces bad values.
	raw := config.DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, raw); err != nil {
			return fmt.Errorf("parsing config: %w", err)
		}
	}
	problems := raw.Validate()

	cfg, err := config.Parse(data)
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "# effective configuration (%s)\n%s", path, out)
	if problems != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nproblems (defaults used instead):\n%v\n", problems)
	}
	return nil
}
