package deploy

import (
	"context"
	"errors"
	"log"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/deploy/apiv1/deploypb"
	"github.com/google/go-github/v39/github"
	"github.com/reillywatson/doratracker/internal/pipeline"
	"github.com/reillywatson/doratracker/internal/source"
)

var _ source.Source = (*ReleaseSource)(nil)

// CommitFetcher resolves a commit sha to its metadata. Both the plain and the
// cached GitHub clients satisfy it.
type CommitFetcher interface {
	FetchCommit(ctx context.Context, owner, repo, sha string) (*github.RepositoryCommit, error)
}

// ReleaseSourceOptions configures a ReleaseSource
type ReleaseSourceOptions struct {
	// Pipelines are delivery pipeline short names
	Pipelines []string

	// Commits, CommitOwner and CommitRepo resolve release commit times.
	// Without them executions carry no changes.
	Commits     CommitFetcher
	CommitOwner string
	CommitRepo  string

	// Logs, when set, replaces a succeeded rollout's completion time with the
	// first log line its release wrote
	Logs LogClientInterface
}

// ReleaseSource turns Cloud Deploy releases into pipeline executions. A
// delivery pipeline is a pipeline and each rollout is a stage named by its
// target.
type ReleaseSource struct {
	client DeployClientInterface
	opts   ReleaseSourceOptions
}

// NewReleaseSource reads the releases of opts.Pipelines
func NewReleaseSource(client DeployClientInterface, opts ReleaseSourceOptions) *ReleaseSource {
	return &ReleaseSource{client: client, opts: opts}
}

// FetchExecutions lists the releases created inside [since, until] with their rollouts
func (s *ReleaseSource) FetchExecutions(ctx context.Context, since, until time.Time) ([]pipeline.Execution, error) {
	var executions []pipeline.Execution

	for _, pipelineName := range s.opts.Pipelines {
		releases, err := s.client.ListReleases(ctx, pipelineName, since, until)
		if err != nil {
			return nil, err
		}

		for _, release := range releases {
			releaseID := path.Base(release.GetName())

			rollouts, err := s.client.ListRollouts(ctx, release.GetName())
			if err != nil {
				log.Printf("Error listing rollouts for release %s: %v", releaseID, err)
				continue
			}

			if s.opts.Logs != nil {
				rollouts = s.confirmWithLogs(ctx, releaseID, rollouts)
			}

			execution := ExecutionFromRelease(path.Base(pipelineName), release, rollouts)
			if change, ok := s.resolveChange(ctx, release); ok {
				execution.Changes = append(execution.Changes, change)
			}
			executions = append(executions, execution)
		}
	}

	return executions, nil
}

func (s *ReleaseSource) confirmWithLogs(ctx context.Context, releaseID string, rollouts []Rollout) []Rollout {
	confirmed := make([]Rollout, len(rollouts))
	copy(confirmed, rollouts)

	for i, rollout := range confirmed {
		if rollout.State != deploypb.Rollout_SUCCEEDED || rollout.DeployStartTime.IsZero() {
			continue
		}
		firstLog, err := s.opts.Logs.FirstLogEntry(ctx, releaseID, rollout.DeployStartTime)
		if err != nil {
			if !errors.Is(err, ErrNoLogEntry) {
				log.Printf("Error finding logs for release %s: %v", releaseID, err)
			}
			continue
		}
		confirmed[i].DeployEndTime = firstLog
	}

	return confirmed
}

func (s *ReleaseSource) resolveChange(ctx context.Context, release *deploypb.Release) (pipeline.Change, bool) {
	if s.opts.Commits == nil {
		return pipeline.Change{}, false
	}

	sha := CommitSHA(release)
	if sha == "" {
		return pipeline.Change{}, false
	}

	commit, err := s.opts.Commits.FetchCommit(ctx, s.opts.CommitOwner, s.opts.CommitRepo, sha)
	if err != nil {
		log.Printf("Error fetching commit %s for release %s: %v", sha, path.Base(release.GetName()), err)
		return pipeline.Change{}, false
	}

	commitTime := commit.GetCommit().GetCommitter().GetDate()
	if commitTime.IsZero() {
		return pipeline.Change{}, false
	}

	return pipeline.Change{CommitID: sha, Timestamp: pipeline.Millis(commitTime)}, true
}

// Close is a no-op; the underlying clients are closed by their owner
func (s *ReleaseSource) Close() error {
	return nil
}

// CommitSHA reads the commit a release was built from out of its annotations
func CommitSHA(release *deploypb.Release) string {
	annotations := release.GetAnnotations()
	if sha, ok := annotations["git-sha"]; ok {
		return sha
	}
	// e.g. https://github.com/acme/api/commit/5c0119f0d4f6c0af79845df919a2389beabdeb22
	if commitURL, ok := annotations["commit"]; ok {
		return path.Base(strings.TrimSuffix(commitURL, "/"))
	}
	return ""
}

// ExecutionFromRelease converts a release and its rollouts to an execution
func ExecutionFromRelease(pipelineID string, release *deploypb.Release, rollouts []Rollout) pipeline.Execution {
	execution := pipeline.Execution{
		PipelineID: pipelineID,
		Number:     release.GetCreateTime().AsTime().Unix(),
		URL:        release.GetName(),
	}

	for _, rollout := range rollouts {
		stage := pipeline.Stage{
			Name:   rollout.TargetID,
			Status: rolloutStatus(rollout.State),
		}
		if !rollout.DeployStartTime.IsZero() {
			stage.StartedAt = pipeline.Millis(rollout.DeployStartTime)
		}
		if stage.Status.Terminal() && !rollout.DeployEndTime.IsZero() {
			stage.CompletedAt = pipeline.Ptr(pipeline.Millis(rollout.DeployEndTime))
		}
		execution.Stages = append(execution.Stages, stage)
	}

	return execution
}

func rolloutStatus(state deploypb.Rollout_State) pipeline.Status {
	switch state {
	case deploypb.Rollout_SUCCEEDED:
		return pipeline.StatusSuccess
	case deploypb.Rollout_FAILED:
		return pipeline.StatusFailed
	case deploypb.Rollout_IN_PROGRESS,
		deploypb.Rollout_PENDING,
		deploypb.Rollout_PENDING_APPROVAL,
		deploypb.Rollout_PENDING_RELEASE,
		deploypb.Rollout_CANCELLING:
		return pipeline.StatusInProgress
	default:
		return pipeline.StatusOther
	}
}
