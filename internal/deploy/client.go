package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	deploy "cloud.google.com/go/deploy/apiv1"
	"cloud.google.com/go/deploy/apiv1/deploypb"
	"cloud.google.com/go/logging/logadmin"
	"google.golang.org/api/iterator"
)

// ErrNoLogEntry is returned when no log line carries the release id
var ErrNoLogEntry = errors.New("no log entry found")

// logSearchWindow bounds how long after a deploy starts its first log line may appear
const logSearchWindow = 30 * time.Minute

// DeployClientInterface lists Cloud Deploy releases and their rollouts
type DeployClientInterface interface {
	ListReleases(ctx context.Context, pipeline string, since, until time.Time) ([]*deploypb.Release, error)
	ListRollouts(ctx context.Context, releaseName string) ([]Rollout, error)
}

// LogClientInterface finds the first log line a release produced
type LogClientInterface interface {
	FirstLogEntry(ctx context.Context, releaseID string, from time.Time) (time.Time, error)
}

// DeployClient wraps Google Cloud Deploy operations
type DeployClient struct {
	deployClient *deploy.CloudDeployClient
	projectID    string
	region       string
}

// NewDeployClient creates a new DeployClient with Application Default Credentials
func NewDeployClient(ctx context.Context, projectID, region string) (*DeployClient, error) {
	deployClient, err := deploy.NewCloudDeployClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create deploy client: %w", err)
	}

	return &DeployClient{
		deployClient: deployClient,
		projectID:    projectID,
		region:       region,
	}, nil
}

// PipelineName expands a delivery pipeline short name to its resource name
func (c *DeployClient) PipelineName(pipeline string) string {
	if strings.HasPrefix(pipeline, "projects/") {
		return pipeline
	}
	return fmt.Sprintf("projects/%s/locations/%s/deliveryPipelines/%s", c.projectID, c.region, pipeline)
}

// ListReleases gets the releases of a delivery pipeline created inside [since, until]
func (c *DeployClient) ListReleases(ctx context.Context, pipeline string, since, until time.Time) ([]*deploypb.Release, error) {
	pipelineName := c.PipelineName(pipeline)
	it := c.deployClient.ListReleases(ctx, &deploypb.ListReleasesRequest{
		Parent: pipelineName,
	})

	var releases []*deploypb.Release
	for {
		release, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list releases for pipeline %s: %w", pipelineName, err)
		}

		// Filter by date range
		createTime := release.GetCreateTime().AsTime()
		if createTime.Before(since) || createTime.After(until) {
			continue
		}
		if release.GetAbandoned() {
			continue
		}
		releases = append(releases, release)
	}

	return releases, nil
}

// ListRollouts gets every rollout of a release
func (c *DeployClient) ListRollouts(ctx context.Context, releaseName string) ([]Rollout, error) {
	it := c.deployClient.ListRollouts(ctx, &deploypb.ListRolloutsRequest{
		Parent: releaseName,
	})

	var rollouts []Rollout
	for {
		rollout, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list rollouts for release %s: %w", releaseName, err)
		}
		rollouts = append(rollouts, RolloutFromProto(rollout))
	}

	return rollouts, nil
}

// Close cleans up the client connections
func (c *DeployClient) Close() error {
	return c.deployClient.Close()
}

// LogClient looks up workload logs written by deployed releases
type LogClient struct {
	loggingClient *logadmin.Client
}

// NewLogClient creates a Cloud Logging admin client for projectID
func NewLogClient(ctx context.Context, projectID string) (*LogClient, error) {
	loggingClient, err := logadmin.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}
	return &LogClient{loggingClient: loggingClient}, nil
}

// FirstLogEntry searches for the first log entry labelled with the release id
// within logSearchWindow of from
func (c *LogClient) FirstLogEntry(ctx context.Context, releaseID string, from time.Time) (time.Time, error) {
	filter := fmt.Sprintf(`labels."k8s-pod/deploy_cloud_google_com/release-id"="%s" AND timestamp>="%s" AND timestamp<="%s"`,
		releaseID,
		from.UTC().Format(time.RFC3339),
		from.Add(logSearchWindow).UTC().Format(time.RFC3339))

	it := c.loggingClient.Entries(ctx,
		logadmin.Filter(filter),
		logadmin.PageSize(1),
	)

	entry, err := it.Next()
	if err == iterator.Done {
		return time.Time{}, fmt.Errorf("release %s: %w", releaseID, ErrNoLogEntry)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("error querying logs: %w", err)
	}

	return entry.Timestamp, nil
}

// Close cleans up the logging client
func (c *LogClient) Close() error {
	return c.loggingClient.Close()
}
