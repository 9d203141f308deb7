package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	logrus "github.com/sirupsen/logrus"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
	"github.com/chaos-framework/chaos-orchestrator/pkg/cluster"
	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
)

// IssueKind enumerates the failure classes the engine knows how to heal
type IssueKind string

const (
	IssuePodCrash           IssueKind = "pod-crash"
	IssueMemoryLeak         IssueKind = "memory-leak"
	IssueNetworkIssue       IssueKind = "network-issue"
	IssueDatabaseConnection IssueKind = "database-connection"
)

// Metrics carries the observations Detect classifies
type Metrics struct {
	RestartCount     int
	MemoryUsageBytes int64
	MemoryLimitBytes int64
	ErrorRate        float64
	DBConnFailures   int
}

// Attempt records one recovery execution for pattern analysis
type Attempt struct {
	Kind      IssueKind `json:"kind"`
	Target    string    `json:"target"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// PatternSummary aggregates attempt history per issue kind
type PatternSummary struct {
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"successRate"`
}

// Engine detects failure classes and executes the matching recovery
type Engine struct {
	cfg     config.Config
	clients clients.ClientSets
	exec    *cluster.Executor

	mu      sync.Mutex
	history []Attempt
}

// NewEngine builds a recovery Engine sharing the given executor
func NewEngine(cfg config.Config, clientSets clients.ClientSets, exec *cluster.Executor) *Engine {
	return &Engine{cfg: cfg, clients: clientSets, exec: exec}
}

// Detect classifies the observed metrics into at most one issue per class,
// most severe first.
func Detect(m Metrics) []IssueKind {
	var issues []IssueKind
	if m.RestartCount > 3 {
		issues = append(issues, IssuePodCrash)
	}
	if m.MemoryLimitBytes > 0 && float64(m.MemoryUsageBytes) > 0.9*float64(m.MemoryLimitBytes) {
		issues = append(issues, IssueMemoryLeak)
	}
	if m.ErrorRate > 0.5 {
		issues = append(issues, IssueNetworkIssue)
	}
	if m.DBConnFailures > 0 {
		issues = append(issues, IssueDatabaseConnection)
	}
	return issues
}

// Execute runs the recovery strategy for the given issue against the target
// workload and records the attempt.
func (e *Engine) Execute(ctx context.Context, kind IssueKind, namespace, target string) error {
	if namespace == "" {
		namespace = e.cfg.AppNamespace
	}

	var err error
	switch kind {
	case IssuePodCrash:
		err = e.restartPod(ctx, namespace, target)
	case IssueMemoryLeak:
		err = e.recycleDeployment(ctx, namespace, target)
	case IssueNetworkIssue:
		err = e.recreateService(ctx, namespace, target)
	case IssueDatabaseConnection:
		err = e.restartStatefulPod(ctx, namespace, target)
	default:
		err = cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInvalidArgument,
			Phase:     "Recovery",
			Target:    target,
			Reason:    fmt.Sprintf("unknown issue kind: %s", kind),
		}
	}

	e.record(Attempt{Kind: kind, Target: target, Success: err == nil, Timestamp: time.Now()})
	if err != nil {
		log.ErrorWithValues("Recovery failed", logrus.Fields{
			"Issue":  string(kind),
			"Target": target,
		})
		return err
	}
	log.InfoWithValues("Recovery executed", logrus.Fields{
		"Issue":  string(kind),
		"Target": target,
	})
	return nil
}

// AnalyzePatterns summarizes the attempt history per issue kind
func (e *Engine) AnalyzePatterns() map[IssueKind]PatternSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	summaries := map[IssueKind]PatternSummary{}
	for _, attempt := range e.history {
		s := summaries[attempt.Kind]
		s.Attempts++
		if attempt.Success {
			s.Successes++
		}
		summaries[attempt.Kind] = s
	}
	for kind, s := range summaries {
		s.SuccessRate = float64(s.Successes) / float64(s.Attempts)
		summaries[kind] = s
	}
	return summaries
}

// History returns a copy of the recorded attempts
func (e *Engine) History() []Attempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Attempt, len(e.history))
	copy(out, e.history)
	return out
}

func (e *Engine) record(a Attempt) {
	e.mu.Lock()
	e.history = append(e.history, a)
	e.mu.Unlock()
}

// restartPod deletes the crashing pod so its controller replaces it
func (e *Engine) restartPod(ctx context.Context, namespace, pod string) error {
	return e.exec.Execute(ctx, cluster.Operation{
		Verb:   "delete pod",
		Target: pod,
		Run: func(ctx context.Context) error {
			return e.clients.KubeClient.CoreV1().Pods(namespace).Delete(ctx, pod, metav1.DeleteOptions{})
		},
	})
}

// recycleDeployment scales the leaking deployment to zero and back to one,
// forcing fresh replicas
func (e *Engine) recycleDeployment(ctx context.Context, namespace, deployment string) error {
	if _, err := e.exec.GetDeployment(ctx, namespace, deployment); err != nil {
		return err
	}
	for _, replicas := range []int32{0, 1} {
		replicas := replicas
		patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
		err := e.exec.Execute(ctx, cluster.Operation{
			Verb:   fmt.Sprintf("scale deployment to %d", replicas),
			Target: deployment,
			Run: func(ctx context.Context) error {
				_, err := e.clients.KubeClient.AppsV1().Deployments(namespace).
					Patch(ctx, deployment, types.MergePatchType, patch, metav1.PatchOptions{})
				return err
			},
		})
		if err != nil {
			return err
		}
		if replicas == 0 {
			time.Sleep(time.Duration(e.cfg.GracePeriod) * time.Second)
		}
	}
	return nil
}

// recreateService deletes and recreates the service to reset its endpoints
func (e *Engine) recreateService(ctx context.Context, namespace, service string) error {
	svc, err := e.clients.KubeClient.CoreV1().Services(namespace).Get(ctx, service, metav1.GetOptions{})
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeNotFound,
			Phase:     "Recovery",
			Target:    service,
			Reason:    err.Error(),
		}
	}
	if err := e.exec.Execute(ctx, cluster.Operation{
		Verb:   "delete service",
		Target: service,
		Run: func(ctx context.Context) error {
			return e.clients.KubeClient.CoreV1().Services(namespace).Delete(ctx, service, metav1.DeleteOptions{})
		},
	}); err != nil {
		return err
	}

	fresh := svc.DeepCopy()
	fresh.ResourceVersion = ""
	fresh.Spec.ClusterIP = ""
	fresh.Spec.ClusterIPs = nil
	return e.exec.Execute(ctx, cluster.Operation{
		Verb:   "recreate service",
		Target: service,
		Run: func(ctx context.Context) error {
			_, err := e.clients.KubeClient.CoreV1().Services(namespace).Create(ctx, fresh, metav1.CreateOptions{})
			return err
		},
	})
}

// restartStatefulPod deletes the primary ordinal pod of the stateful set so
// it reconnects after rescheduling
func (e *Engine) restartStatefulPod(ctx context.Context, namespace, statefulSet string) error {
	return e.restartPod(ctx, namespace, statefulSet+"-0")
}
