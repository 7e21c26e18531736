package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/reillywatson/doratracker/internal/metrics"
	"github.com/reillywatson/doratracker/internal/pipeline"
	"github.com/reillywatson/doratracker/internal/schedule"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTimezone     = "UTC"
	DefaultLookbackDays = 30
	DefaultGitHubEnv    = "GITHUB_TOKEN"
	DefaultCircleCIEnv  = "CIRCLECI_TOKEN"
	DefaultFetchSlack   = 24 * time.Hour
)

// Source types
const (
	SourceGitHub      = "github"
	SourceCircleCI    = "circleci"
	SourceCloudDeploy = "clouddeploy"
	SourceFile        = "file"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Config is the whole dora-tracker configuration file.
type Config struct {
	// Project names the results and partitions the metric cache.
	Project string `yaml:"project"`

	// Timezone is the IANA zone day-granular windows are cut in.
	Timezone string `yaml:"timezone"`

	// LookbackDays is the window length used when no -since is given.
	LookbackDays int `yaml:"lookback_days"`

	// Interval optionally breaks the window into fortnightly or monthly periods.
	Interval string `yaml:"interval"`

	// Metrics lists the metric kinds to compute. Empty means all.
	Metrics []string `yaml:"metrics"`

	// Pipelines maps a pipeline id to the stage that counts as its deployment.
	Pipelines map[string]string `yaml:"pipelines"`

	// Schedule is a cron expression for periodic recalculation, evaluated in
	// Timezone. Empty means run once.
	Schedule string `yaml:"schedule"`

	Source SourceConfig `yaml:"source"`
	Cache  CacheConfig  `yaml:"cache"`

	loc *time.Location
}

// SourceConfig selects where executions come from. Only the block matching
// Type is read.
type SourceConfig struct {
	Type string `yaml:"type"`

	// FetchSlack widens the fetch back from the window start, for runs
	// created before the window that finish inside it.
	FetchSlack time.Duration `yaml:"fetch_slack"`


	GitHub      GitHubConfig      `yaml:"github"`
	CircleCI    CircleCIConfig    `yaml:"circleci"`
	CloudDeploy CloudDeployConfig `yaml:"clouddeploy"`
	File        FileConfig        `yaml:"file"`
}

// Identity names the data the configured source reads, for cache keys.
// Two configs share cached executions only when they read the same thing.
func (s SourceConfig) Identity() string {
	switch s.Type {
	case SourceGitHub:
		workflows := slices.Sorted(slices.Values(s.GitHub.Workflows))
		return fmt.Sprintf("github:%s:%s/%s:%s", s.GitHub.BaseURL, s.GitHub.Owner, s.GitHub.Repo, strings.Join(workflows, ","))
	case SourceCircleCI:
		return fmt.Sprintf("circleci:%s/%s/%s", s.CircleCI.VCS, s.CircleCI.Org, s.CircleCI.Repo)
	case SourceCloudDeploy:
		cd := s.CloudDeploy
		pipelines := slices.Sorted(slices.Values(cd.Pipelines))
		return fmt.Sprintf("clouddeploy:%s/%s:%s:%s/%s:%t",
			cd.ProjectID, cd.Region, strings.Join(pipelines, ","), cd.CommitOwner, cd.CommitRepo, cd.ConfirmWithLogs)
	case SourceFile:
		return "file:" + s.File.Path
	}
	return s.Type
}

// GitHubConfig reads GitHub Actions workflow runs.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`

	// Workflows restricts runs to these workflow names. Empty means all.
	Workflows []string `yaml:"workflows"`

	// BaseURL points at a GitHub Enterprise API, e.g. https://ghe.example.com/api/v3/
	BaseURL string `yaml:"base_url"`

	TokenEnv string `yaml:"token_env"`
}

// Token returns the GitHub token resolved from the environment.
func (g GitHubConfig) Token() string {
	return os.Getenv(g.TokenEnv)
}

// CircleCIConfig reads CircleCI workflows.
type CircleCIConfig struct {
	VCS      string `yaml:"vcs"`
	Org      string `yaml:"org"`
	Repo     string `yaml:"repo"`
	TokenEnv string `yaml:"token_env"`
}

// Token returns the CircleCI token resolved from the environment.
func (c CircleCIConfig) Token() string {
	return os.Getenv(c.TokenEnv)
}

// CloudDeployConfig reads Google Cloud Deploy releases.
type CloudDeployConfig struct {
	ProjectID string   `yaml:"project_id"`
	Region    string   `yaml:"region"`
	Pipelines []string `yaml:"delivery_pipelines"`

	// CommitOwner/CommitRepo is the GitHub repository release git-sha
	// annotations point into. Leave empty to skip commit lookups.
	CommitOwner    string `yaml:"commit_owner"`
	CommitRepo     string `yaml:"commit_repo"`
	GitHubTokenEnv string `yaml:"github_token_env"`

	ConfirmWithLogs bool `yaml:"confirm_with_logs"`
}

// GitHubToken returns the token used for commit lookups.
func (c CloudDeployConfig) GitHubToken() string {
	return os.Getenv(c.GitHubTokenEnv)
}

// FileConfig reads a JSON snapshot of executions.
type FileConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls the on-disk cache.
type CacheConfig struct {
	Disabled bool `yaml:"disabled"`

	// Dir overrides the user cache directory.
	Dir string `yaml:"dir"`

	// RedisAddr shares the cache through a Redis server instead of disk.
	RedisAddr string `yaml:"redis_addr"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config content.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Location returns the configured timezone.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Roles returns the pipeline to deployment-stage mapping.
func (c *Config) Roles() pipeline.RoleStages {
	roles := make(pipeline.RoleStages, len(c.Pipelines))
	for id, stage := range c.Pipelines {
		roles[id] = stage
	}
	return roles
}

// Kinds returns the metric kinds to compute; nil means all of them.
func (c *Config) Kinds() []metrics.Kind {
	if len(c.Metrics) == 0 {
		return nil
	}
	kinds := make([]metrics.Kind, 0, len(c.Metrics))
	for _, m := range c.Metrics {
		// already validated
		kind, _ := metrics.ParseKind(m)
		kinds = append(kinds, kind)
	}
	return kinds
}

// Unit returns the breakdown interval, or "" when none is configured.
func (c *Config) Unit() metrics.Unit {
	return metrics.Unit(c.Interval)
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Timezone:     DefaultTimezone,
		LookbackDays: DefaultLookbackDays,
		Source: SourceConfig{
			FetchSlack:  DefaultFetchSlack,
			GitHub:      GitHubConfig{TokenEnv: DefaultGitHubEnv},
			CircleCI:    CircleCIConfig{VCS: "gh", TokenEnv: DefaultCircleCIEnv},
			CloudDeploy: CloudDeployConfig{GitHubTokenEnv: DefaultGitHubEnv},
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Project == "" {
		return fmt.Errorf("%w: project is required", ErrInvalid)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalid, cfg.Timezone, err)
	}
	cfg.loc = loc

	if cfg.LookbackDays <= 0 {
		return fmt.Errorf("%w: lookback_days must be positive", ErrInvalid)
	}

	if cfg.Interval != "" {
		if _, err := metrics.ParseUnit(cfg.Interval); err != nil {
			return fmt.Errorf("%w: interval: %v", ErrInvalid, err)
		}
	}

	for i, m := range cfg.Metrics {
		if _, err := metrics.ParseKind(m); err != nil {
			return fmt.Errorf("%w: metrics[%d]: %v", ErrInvalid, i, err)
		}
	}

	if cfg.Schedule != "" {
		if _, err := schedule.Parse(cfg.Schedule, loc); err != nil {
			return fmt.Errorf("%w: schedule: %v", ErrInvalid, err)
		}
	}

	if cfg.Cache.Dir != "" && cfg.Cache.RedisAddr != "" {
		return fmt.Errorf("%w: cache: dir and redis_addr are mutually exclusive", ErrInvalid)
	}

	if len(cfg.Pipelines) == 0 {
		return fmt.Errorf("%w: at least one pipeline is required", ErrInvalid)
	}
	for id, stage := range cfg.Pipelines {
		if stage == "" {
			return fmt.Errorf("%w: pipelines[%s]: stage is required", ErrInvalid, id)
		}
	}

	return validateSource(cfg.Source)
}

func validateSource(src SourceConfig) error {
	if src.FetchSlack < 0 {
		return fmt.Errorf("%w: source.fetch_slack must not be negative", ErrInvalid)
	}

	switch src.Type {
	case SourceGitHub:
		if src.GitHub.Owner == "" || src.GitHub.Repo == "" {
			return fmt.Errorf("%w: source.github: owner and repo are required", ErrInvalid)
		}
	case SourceCircleCI:
		if src.CircleCI.Org == "" || src.CircleCI.Repo == "" {
			return fmt.Errorf("%w: source.circleci: org and repo are required", ErrInvalid)
		}
	case SourceCloudDeploy:
		cd := src.CloudDeploy
		if cd.ProjectID == "" || cd.Region == "" {
			return fmt.Errorf("%w: source.clouddeploy: project_id and region are required", ErrInvalid)
		}
		if len(cd.Pipelines) == 0 {
			return fmt.Errorf("%w: source.clouddeploy: delivery_pipelines is required", ErrInvalid)
		}
		if (cd.CommitOwner == "") != (cd.CommitRepo == "") {
			return fmt.Errorf("%w: source.clouddeploy: commit_owner and commit_repo go together", ErrInvalid)
		}
	case SourceFile:
		if src.File.Path == "" {
			return fmt.Errorf("%w: source.file: path is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown source type %q", ErrInvalid, src.Type)
	}
	return nil
}
