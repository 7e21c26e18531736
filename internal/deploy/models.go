package deploy

import (
	"time"

	"cloud.google.com/go/deploy/apiv1/deploypb"
)

// Rollout is the part of a Cloud Deploy rollout that maps onto a stage. It is
// kept separate from deploypb.Rollout so it can round-trip through the cache.
type Rollout struct {
	Name            string                 `json:"name"`
	TargetID        string                 `json:"target_id"`
	State           deploypb.Rollout_State `json:"state"`
	DeployStartTime time.Time              `json:"deploy_start_time,omitempty"`
	DeployEndTime   time.Time              `json:"deploy_end_time,omitempty"`
}

// RolloutFromProto copies the fields we use out of an API rollout
func RolloutFromProto(r *deploypb.Rollout) Rollout {
	rollout := Rollout{
		Name:     r.GetName(),
		TargetID: r.GetTargetId(),
		State:    r.GetState(),
	}
	if ts := r.GetDeployStartTime(); ts != nil {
		rollout.DeployStartTime = ts.AsTime()
	}
	if ts := r.GetDeployEndTime(); ts != nil {
		rollout.DeployEndTime = ts.AsTime()
	}
	return rollout
}
