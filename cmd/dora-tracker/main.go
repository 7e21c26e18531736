package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reillywatson/doratracker/internal/cache"
	"github.com/reillywatson/doratracker/internal/circleci"
	"github.com/reillywatson/doratracker/internal/config"
	"github.com/reillywatson/doratracker/internal/deploy"
	"github.com/reillywatson/doratracker/internal/github"
	"github.com/reillywatson/doratracker/internal/metrics"
	"github.com/reillywatson/doratracker/internal/pipeline"
	"github.com/reillywatson/doratracker/internal/report"
	"github.com/reillywatson/doratracker/internal/schedule"
	"github.com/reillywatson/doratracker/internal/source"
	"golang.org/x/sync/errgroup"
)

// options are the command line overrides applied on top of the config file
type options struct {
	since    string
	until    string
	metrics  string
	interval string
	format   string
	out      string
	noCache  bool
	schedule string
}

func main() {
	// Define command line flags
	configPath := flag.String("config", "dora.yaml", "Path to the YAML config file")
	watch := flag.Bool("watch", false, "Recalculate every time the config file changes")

	var opts options
	flag.StringVar(&opts.since, "since", "", "Start date in YYYY-MM-DD format (defaults to lookback_days before -until)")
	flag.StringVar(&opts.until, "until", "", "End date in YYYY-MM-DD format, inclusive (defaults to today)")
	flag.StringVar(&opts.metrics, "metrics", "", "Comma-separated metric kinds (defaults to the config file, or all)")
	flag.StringVar(&opts.interval, "interval", "", "Break the window down: fortnightly or monthly")
	flag.StringVar(&opts.format, "format", report.FormatText, "Output format: text, json or prometheus")
	flag.StringVar(&opts.out, "out", "", "Write the report to this file instead of stdout")
	flag.BoolVar(&opts.noCache, "no-cache", false, "Bypass the on-disk cache")
	flag.StringVar(&opts.schedule, "schedule", "", "Cron expression to recalculate on (overrides the config file)")

	// Parse flags
	flag.Parse()

	if flag.NArg() > 0 {
		fmt.Println("Usage: dora-tracker [flags]")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, opts, time.Now()); err != nil {
		log.Fatalf("Error calculating metrics: %v", err)
	}

	expr := opts.schedule
	if expr == "" {
		expr = cfg.Schedule
	}
	if !*watch && expr == "" {
		return
	}

	if err := daemon(ctx, *configPath, cfg, opts, expr, *watch); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Error: %v", err)
	}
}

// daemon keeps recalculating until ctx is cancelled: on every config change
// when watching, and at every scheduled time when expr is set. Runs are
// serialized and scheduled runs use the most recently loaded config.
func daemon(ctx context.Context, configPath string, cfg *config.Config, opts options, expr string, watch bool) error {
	var sched *schedule.Schedule
	if expr != "" {
		var err error
		if sched, err = schedule.Parse(expr, cfg.Location()); err != nil {
			return err
		}
	}

	var mu sync.Mutex
	current := cfg

	g, ctx := errgroup.WithContext(ctx)

	if watch {
		g.Go(func() error {
			return config.Watch(ctx, configPath, func(cfg *config.Config) {
				mu.Lock()
				defer mu.Unlock()
				current = cfg
				if err := run(ctx, cfg, opts, time.Now()); err != nil {
					log.Printf("Error calculating metrics: %v", err)
				}
			})
		})
	}

	if sched != nil {
		g.Go(func() error {
			return schedule.Run(ctx, sched, func(ctx context.Context, at time.Time) {
				mu.Lock()
				defer mu.Unlock()
				if err := run(ctx, current, opts, at); err != nil {
					log.Printf("Error calculating metrics: %v", err)
				}
			})
		})
	}

	return g.Wait()
}

// run fetches executions for the configured source and writes one report
func run(ctx context.Context, cfg *config.Config, opts options, now time.Time) error {
	loc := cfg.Location()
	runID := uuid.NewString()

	window, err := resolveWindow(opts.since, opts.until, cfg.LookbackDays, loc, now)
	if err != nil {
		return err
	}

	kinds, err := resolveKinds(opts.metrics, cfg)
	if err != nil {
		return err
	}

	unit := cfg.Unit()
	if opts.interval != "" {
		if unit, err = metrics.ParseUnit(opts.interval); err != nil {
			return err
		}
	}

	cacheImpl, err := newCache(cfg, opts.noCache)
	if err != nil {
		return fmt.Errorf("error creating cache: %w", err)
	}
	defer cacheImpl.Close()

	src, closers, err := buildSource(ctx, cfg, cacheImpl)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Printf("Error closing client: %v", err)
			}
		}
	}()

	src = wrapSource(cfg.Source, src, cacheImpl)
	defer src.Close()

	log.Printf("[%s] Fetching executions for %s from %s to %s...",
		runID, cfg.Project, window.StartTime().In(loc).Format("2006-01-02"), window.EndTime().In(loc).Format("2006-01-02"))

	executions, err := src.FetchExecutions(ctx, window.StartTime(), window.EndTime())
	if err != nil {
		return fmt.Errorf("error fetching executions: %w", err)
	}

	log.Printf("[%s] Found %d executions", runID, len(executions))

	req := metrics.Request{
		Executions: executions,
		Window:     window,
		Days:       window.Days(loc),
		Roles:      cfg.Roles(),
	}

	dispatcher := metrics.NewDispatcher(metrics.DefaultRegistry())
	cached := metrics.NewCachedDispatcher(dispatcher, cacheImpl)

	resp, err := cached.Calculate(ctx, cfg.Project, req, kinds...)
	if err != nil {
		return err
	}

	r := report.Report{
		RunID:    runID,
		Project:  cfg.Project,
		Window:   window,
		Days:     req.Days,
		Results:  resp,
		Location: loc,
	}

	if unit != "" {
		if r.Periods, err = dispatcher.Breakdown(ctx, req, unit, loc, kinds...); err != nil {
			return err
		}
	}

	return writeReport(opts, r)
}

func writeReport(opts options, r report.Report) error {
	if opts.out == "" {
		return report.Write(os.Stdout, opts.format, r)
	}

	f, err := os.Create(opts.out)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", opts.out, err)
	}
	if err := report.Write(f, opts.format, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// resolveWindow turns the -since/-until dates into an inclusive window of
// whole days in loc
func resolveWindow(since, until string, lookbackDays int, loc *time.Location, now time.Time) (pipeline.Window, error) {
	endDate := now.In(loc)
	if until != "" {
		parsedDate, err := time.ParseInLocation("2006-01-02", until, loc)
		if err != nil {
			return pipeline.Window{}, fmt.Errorf("invalid date format, please use YYYY-MM-DD: %w", err)
		}
		endDate = parsedDate
	}

	startDate := endDate.AddDate(0, 0, -(lookbackDays - 1))
	if since != "" {
		parsedDate, err := time.ParseInLocation("2006-01-02", since, loc)
		if err != nil {
			return pipeline.Window{}, fmt.Errorf("invalid date format, please use YYYY-MM-DD: %w", err)
		}
		startDate = parsedDate
	}

	window := pipeline.DayWindow(startDate, endDate, loc)
	if window.Start > window.End {
		return pipeline.Window{}, fmt.Errorf("start date cannot be after end date")
	}
	return window, nil
}

func resolveKinds(list string, cfg *config.Config) ([]metrics.Kind, error) {
	if list == "" {
		return cfg.Kinds(), nil
	}

	var kinds []metrics.Kind
	for _, name := range strings.Split(list, ",") {
		kind, err := metrics.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// newCache is replaced in tests
var newCache = openCache

func openCache(cfg *config.Config, noCache bool) (cache.Cache, error) {
	if noCache || cfg.Cache.Disabled {
		return cache.NopCache{}, nil
	}
	if cfg.Cache.RedisAddr != "" {
		return cache.NewRedisCache(cfg.Cache.RedisAddr)
	}

	var fc *cache.FileCache
	var err error
	if cfg.Cache.Dir != "" {
		fc, err = cache.NewFileCacheWithDir(cfg.Cache.Dir)
	} else {
		fc, err = cache.NewDefaultCache()
	}
	if err != nil {
		return nil, err
	}

	if removed, err := fc.Prune(); err != nil {
		log.Printf("Error pruning cache: %v", err)
	} else if removed > 0 {
		log.Printf("Pruned %d expired cache entries from %s", removed, fc.Dir())
	}
	return fc, nil
}

// wrapSource caches remote sources under their identity and widens every
// fetch by the configured slack. Local snapshots are read fresh each run.
func wrapSource(sc config.SourceConfig, src source.Source, cacheImpl cache.Cache) source.Source {
	if sc.Type != config.SourceFile {
		src = source.NewCachedSource(sc.Identity(), src, cacheImpl)
	}
	if sc.FetchSlack > 0 {
		src = source.NewLookbehindSource(src, sc.FetchSlack)
	}
	return src
}

// buildSource creates the execution source named in the config. The returned
// closers own the API connections the source uses.
func buildSource(ctx context.Context, cfg *config.Config, cacheImpl cache.Cache) (source.Source, []io.Closer, error) {
	switch cfg.Source.Type {
	case config.SourceFile:
		return source.NewFileSource(cfg.Source.File.Path), nil, nil

	case config.SourceGitHub:
		gh := cfg.Source.GitHub
		client, err := newGitHubClient(gh.BaseURL, gh.Token(), gh.TokenEnv)
		if err != nil {
			return nil, nil, err
		}
		cached := github.NewCachedGitHubClient(client, cacheImpl)
		return github.NewActionsSource(cached, gh.Owner, gh.Repo, gh.Workflows), nil, nil

	case config.SourceCircleCI:
		cc := cfg.Source.CircleCI
		token := cc.Token()
		if token == "" {
			return nil, nil, fmt.Errorf("%s environment variable not set", cc.TokenEnv)
		}
		client := circleci.NewCircleCIClient(token)
		slug := circleci.ProjectSlug(cc.VCS, cc.Org, cc.Repo)
		if err := client.VerifyProjectAccess(ctx, slug); err != nil {
			return nil, nil, fmt.Errorf("cannot access CircleCI project: %w", err)
		}
		cached := circleci.NewCachedCircleCIClient(client, cacheImpl)
		return circleci.NewWorkflowSource(cached, slug), []io.Closer{client}, nil

	case config.SourceCloudDeploy:
		return buildCloudDeploySource(ctx, cfg.Source.CloudDeploy, cacheImpl)
	}

	return nil, nil, fmt.Errorf("unknown source type %q", cfg.Source.Type)
}

func buildCloudDeploySource(ctx context.Context, cd config.CloudDeployConfig, cacheImpl cache.Cache) (source.Source, []io.Closer, error) {
	deployClient, err := deploy.NewDeployClient(ctx, cd.ProjectID, cd.Region)
	if err != nil {
		return nil, nil, err
	}
	closers := []io.Closer{deployClient}

	opts := deploy.ReleaseSourceOptions{
		Pipelines:   cd.Pipelines,
		CommitOwner: cd.CommitOwner,
		CommitRepo:  cd.CommitRepo,
	}

	if cd.CommitOwner != "" {
		client, err := newGitHubClient("", cd.GitHubToken(), cd.GitHubTokenEnv)
		if err != nil {
			deployClient.Close()
			return nil, nil, err
		}
		opts.Commits = github.NewCachedGitHubClient(client, cacheImpl)
	}

	if cd.ConfirmWithLogs {
		logClient, err := deploy.NewLogClient(ctx, cd.ProjectID)
		if err != nil {
			deployClient.Close()
			return nil, nil, err
		}
		opts.Logs = logClient
		closers = append(closers, logClient)
	}

	cached := deploy.NewCachedDeployClient(deployClient, cd.ProjectID, cd.Region, cacheImpl)
	return deploy.NewReleaseSource(cached, opts), closers, nil
}

func newGitHubClient(baseURL, token, tokenEnv string) (*github.GitHubClient, error) {
	if token == "" {
		return nil, fmt.Errorf("%s environment variable not set", tokenEnv)
	}
	if baseURL != "" {
		return github.NewEnterpriseGitHubClient(baseURL, token)
	}
	return github.NewGitHubClient(token), nil
}
