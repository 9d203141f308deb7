package experiment

import (
	"time"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"
	corev1 "k8s.io/api/core/v1"

	"github.com/chaos-framework/chaos-orchestrator/pkg/status"
)

// RunState is the lifecycle position of one experiment identity
type RunState string

const (
	StateNotApplied    RunState = "NotApplied"
	StateApplying      RunState = "Applying"
	StateAwaitingStart RunState = "AwaitingStart"
	StateMonitoring    RunState = "Monitoring"
	StateStopping      RunState = "Stopping"
	StateStopped       RunState = "Stopped"
	StateFailed        RunState = "Failed"
)

// EngineStatus is the engine lifecycle phase as read from the cluster. It is
// never computed locally, the cluster resource is the source of truth.
type EngineStatus string

const (
	EngineUnknown     EngineStatus = "Unknown"
	EngineInitialized EngineStatus = "Initialized"
	EngineRunning     EngineStatus = "Running"
	EngineCompleted   EngineStatus = "Completed"
	EngineStopped     EngineStatus = "Stopped"
)

// EngineStatusFrom projects a cluster engine resource onto the status enum.
// An initialized engine with a running sub-experiment counts as Running.
func EngineStatusFrom(engine *v1alpha1.ChaosEngine) EngineStatus {
	if engine == nil {
		return EngineUnknown
	}
	switch engine.Status.EngineStatus {
	case v1alpha1.EngineStatusInitialized:
		for _, exp := range engine.Status.Experiments {
			if exp.Status == v1alpha1.ExperimentStatusRunning {
				return EngineRunning
			}
		}
		return EngineInitialized
	case v1alpha1.EngineStatusCompleted:
		return EngineCompleted
	case v1alpha1.EngineStatusStopped:
		return EngineStopped
	default:
		return EngineUnknown
	}
}

// PodSnapshot is a transient projection of one pod, valid for a single
// polling tick only
type PodSnapshot struct {
	Name  string `json:"name"`
	Phase string `json:"phase"`
	Ready bool   `json:"ready"`
}

// SnapshotPods projects a pod list
func SnapshotPods(pods []corev1.Pod) []PodSnapshot {
	snapshots := make([]PodSnapshot, 0, len(pods))
	for _, pod := range pods {
		snapshots = append(snapshots, PodSnapshot{
			Name:  pod.Name,
			Phase: string(pod.Status.Phase),
			Ready: status.IsPodReady(pod),
		})
	}
	return snapshots
}

// SubStatus is the reported state of one sub-experiment of an engine
type SubStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Verdict string `json:"verdict"`
}

// StatusSnapshot is the composite monitoring view of one experiment identity
type StatusSnapshot struct {
	Name        string        `json:"name"`
	Namespace   string        `json:"namespace"`
	Engine      EngineStatus  `json:"engineStatus"`
	Experiments []SubStatus   `json:"experiments"`
	ChaosPods   []PodSnapshot `json:"chaosPods"`
	AppPods     []PodSnapshot `json:"appPods"`
}

// Run tracks one applied experiment for the duration of the operation. The
// cluster resource, not this struct, is the durable record.
type Run struct {
	Name           string
	Namespace      string
	DefinitionPath string
	AppliedAt      time.Time
	State          RunState
	Engine         EngineStatus
	TargetPods     []PodSnapshot
}
