package experiment

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"
	"github.com/palantir/stacktrace"
	logrus "github.com/sirupsen/logrus"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
	"github.com/chaos-framework/chaos-orchestrator/pkg/cluster"
	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
	"github.com/chaos-framework/chaos-orchestrator/pkg/events"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
	"github.com/chaos-framework/chaos-orchestrator/pkg/metrics"
	"github.com/chaos-framework/chaos-orchestrator/pkg/notify"
	"github.com/chaos-framework/chaos-orchestrator/pkg/status"
	"github.com/chaos-framework/chaos-orchestrator/pkg/telemetry"
	"github.com/chaos-framework/chaos-orchestrator/pkg/validate"
)

// chaosPodSelector matches the runner/job pods the chaos platform spins up
const chaosPodSelector = "job-name"

// Controller drives the apply -> await-start -> monitor -> stop transitions
// of experiment identities. It holds no cross-identity mutable state, the
// cluster control plane is the only serialization point.
type Controller struct {
	cfg       config.Config
	clients   clients.ClientSets
	exec      *cluster.Executor
	notifier  notify.Notifier
	collector *metrics.Collector
}

// NewController wires a lifecycle controller. The collector may be nil when
// monitoring is disabled.
func NewController(cfg config.Config, clientSets clients.ClientSets, notifier notify.Notifier, collector *metrics.Collector) *Controller {
	return &Controller{
		cfg:       cfg,
		clients:   clientSets,
		exec:      cluster.NewExecutor(clientSets, cfg),
		notifier:  notifier,
		collector: collector,
	}
}

// Executor exposes the controller's cluster executor for collaborators that
// share its retry policy
func (c *Controller) Executor() *cluster.Executor {
	return c.exec
}

// Apply validates the identity, applies its definition manifest and waits for
// the engine to report that it has started. On a failed apply the identity
// stays NotApplied.
func (c *Controller) Apply(ctx context.Context, name string) (*Run, error) {
	ctx, span := telemetry.StartTracing(ctx, "ApplyChaosExperiment")
	defer span.End()

	name, err := validate.ExperimentName(name)
	if err != nil {
		return nil, err
	}
	run := &Run{
		Name:           name,
		Namespace:      c.cfg.AppNamespace,
		DefinitionPath: c.DefinitionPath(name),
		State:          StateNotApplied,
		Engine:         EngineUnknown,
	}

	if _, err := os.Stat(run.DefinitionPath); err != nil {
		return run, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeNotFound,
			Phase:     "Apply",
			Target:    run.DefinitionPath,
			Reason:    "experiment definition file not found",
		}
	}

	log.Infof("Running chaos experiment: %v", name)
	run.State = StateApplying
	if err := c.exec.ApplyManifest(ctx, run.DefinitionPath, run.Namespace); err != nil {
		run.State = StateNotApplied
		c.notifier.NotifyError(name, run.Namespace, err)
		c.collector.ExperimentFailed(name)
		return run, stacktrace.Propagate(err, "failed to apply experiment %v", name)
	}
	run.AppliedAt = time.Now()
	run.State = StateAwaitingStart
	c.recordEvent(ctx, name, run.Namespace, events.ReasonApplied, fmt.Sprintf("experiment %v applied", name))

	// bridge the eventual-consistency lag between apply and status visibility
	log.Info("Waiting for experiment to start...")
	time.Sleep(time.Duration(c.cfg.GracePeriod) * time.Second)

	if err := status.WaitForEngineStatus(ctx, run.Namespace, name, c.cfg.DefaultTimeout, c.cfg.CheckInterval, c.clients,
		v1alpha1.EngineStatusInitialized, v1alpha1.EngineStatusCompleted); err != nil {
		run.State = StateFailed
		c.notifier.NotifyError(name, run.Namespace, err)
		c.collector.ExperimentFailed(name)
		return run, err
	}

	run.State = StateMonitoring
	snapshot := c.snapshot(ctx, name, run.Namespace)
	run.Engine = snapshot.Engine
	run.TargetPods = snapshot.AppPods
	c.notifier.NotifyStarted(name, run.Namespace)
	c.collector.ExperimentStarted(name)
	return run, nil
}

// Monitor is a read-only composite status probe. A missing resource is
// reported as Unknown, never as an error.
func (c *Controller) Monitor(ctx context.Context, name string) (*StatusSnapshot, error) {
	name, err := validate.ExperimentName(name)
	if err != nil {
		return nil, err
	}
	snapshot := c.snapshot(ctx, name, c.cfg.AppNamespace)
	log.InfoWithValues("Experiment status", logrus.Fields{
		"Experiment":   name,
		"EngineStatus": snapshot.Engine,
		"ChaosPods":    len(snapshot.ChaosPods),
		"AppPods":      len(snapshot.AppPods),
	})
	return snapshot, nil
}

func (c *Controller) snapshot(ctx context.Context, name, namespace string) *StatusSnapshot {
	snapshot := &StatusSnapshot{
		Name:      name,
		Namespace: namespace,
		Engine:    EngineUnknown,
	}

	engine, err := c.exec.GetEngine(ctx, namespace, name)
	switch {
	case err == nil:
		snapshot.Engine = EngineStatusFrom(engine)
		for _, exp := range engine.Status.Experiments {
			snapshot.Experiments = append(snapshot.Experiments, SubStatus{
				Name:    exp.Name,
				Status:  string(exp.Status),
				Verdict: string(exp.Verdict),
			})
		}
	case cerrors.IsType(err, cerrors.ErrorTypeNotFound):
		log.Warnf("Could not retrieve engine status for %v, engine not found", name)
	default:
		log.Warnf("Could not retrieve engine status for %v, err: %v", name, err)
	}

	if chaosPods, err := c.exec.ListPods(ctx, namespace, chaosPodSelector); err != nil {
		log.Warnf("Could not list chaos pods in %v, err: %v", namespace, err)
	} else {
		snapshot.ChaosPods = SnapshotPods(chaosPods.Items)
	}

	if appPods, err := c.exec.ListPods(ctx, namespace, c.cfg.AppLabel); err != nil {
		log.Warnf("Could not list application pods in %v, err: %v", namespace, err)
	} else {
		snapshot.AppPods = SnapshotPods(appPods.Items)
	}
	return snapshot
}

// Stop patches the engine's desired state to stop and deletes it. The patch
// is best-effort, the engine may already be stopping. A missing engine is a
// success, stop is idempotent.
func (c *Controller) Stop(ctx context.Context, name string) error {
	ctx, span := telemetry.StartTracing(ctx, "StopChaosExperiment")
	defer span.End()

	name, err := validate.ExperimentName(name)
	if err != nil {
		return err
	}
	namespace := c.cfg.AppNamespace
	log.Infof("Stopping chaos experiment: %v", name)

	if err := c.exec.PatchEngineState(ctx, namespace, name, v1alpha1.EngineStateStop); err != nil {
		log.Warnf("Could not patch engine %v to stop (may already be stopping), err: %v", name, err)
	}

	if err := c.exec.DeleteEngine(ctx, namespace, name); err != nil {
		if cerrors.IsType(err, cerrors.ErrorTypeNotFound) {
			log.Infof("Engine %v already gone, treating stop as success", name)
			return nil
		}
		c.notifier.NotifyError(name, namespace, err)
		c.collector.ExperimentFailed(name)
		return cerrors.Error{
			ErrorCode: cerrors.GetErrorType(err),
			Phase:     "Stop",
			Target:    name,
			Reason:    fmt.Sprintf("failed to delete engine: %v", err),
		}
	}

	c.recordEvent(ctx, name, namespace, events.ReasonStopped, fmt.Sprintf("experiment %v stopped", name))
	c.notifier.NotifyCompleted(name, namespace, true, "experiment stopped and deleted")
	c.collector.ExperimentStopped(name)
	log.Infof("Stopped and deleted experiment: %v", name)
	return nil
}

// CleanupAll sweeps every fault-injection engine in the namespace. Discovered
// names are re-validated defensively, the cluster could hold a name that
// predates the current rules. Partial failure never aborts the batch.
func (c *Controller) CleanupAll(ctx context.Context, namespace string) (stopped, skipped int, err error) {
	namespace, err = validate.Namespace(namespace)
	if err != nil {
		return 0, 0, err
	}
	log.Infof("Cleaning up all chaos experiments in namespace %v...", namespace)

	engines, err := c.exec.ListEngines(ctx, namespace)
	if err != nil {
		return 0, 0, stacktrace.Propagate(err, "failed to list engines in %v", namespace)
	}
	if len(engines.Items) == 0 {
		log.Info("No experiments to clean up")
		return 0, 0, nil
	}

	log.Infof("Found %v experiment(s) to clean up", len(engines.Items))
	for _, engine := range engines.Items {
		if _, verr := validate.ExperimentName(engine.Name); verr != nil {
			log.Warnf("Skipping invalid experiment name %q: %v", engine.Name, verr)
			skipped++
			continue
		}
		if serr := c.Stop(ctx, engine.Name); serr != nil {
			log.Errorf("Failed to stop experiment %v during cleanup, err: %v", engine.Name, serr)
			skipped++
			continue
		}
		stopped++
	}
	c.recordEvent(ctx, "cleanup", namespace, events.ReasonCleanup,
		fmt.Sprintf("cleanup swept %v experiment(s), skipped %v", stopped, skipped))
	return stopped, skipped, nil
}

// Running lists the engines currently present in the namespace. No engines is
// a normal outcome.
func (c *Controller) Running(ctx context.Context, namespace string) ([]StatusSnapshot, error) {
	namespace, err := validate.Namespace(namespace)
	if err != nil {
		return nil, err
	}
	engines, err := c.exec.ListEngines(ctx, namespace)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to list engines in %v", namespace)
	}
	snapshots := make([]StatusSnapshot, 0, len(engines.Items))
	for i := range engines.Items {
		engine := &engines.Items[i]
		snapshot := StatusSnapshot{
			Name:      engine.Name,
			Namespace: engine.Namespace,
			Engine:    EngineStatusFrom(engine),
		}
		for _, exp := range engine.Status.Experiments {
			snapshot.Experiments = append(snapshot.Experiments, SubStatus{
				Name:    exp.Name,
				Status:  string(exp.Status),
				Verdict: string(exp.Verdict),
			})
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

func (c *Controller) recordEvent(ctx context.Context, name, namespace, reason, message string) {
	details := events.EventDetails{
		Message:    message,
		Reason:     reason,
		EngineName: name,
		Namespace:  namespace,
	}
	if engine, err := c.exec.GetEngine(ctx, namespace, name); err == nil {
		details.EngineUID = engine.UID
	}
	if err := events.GenerateEvents(ctx, &details, c.clients); err != nil {
		log.Warnf("Unable to record %v event for %v, err: %v", reason, name, err)
	}
}
