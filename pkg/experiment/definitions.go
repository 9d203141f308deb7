package experiment

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/palantir/stacktrace"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
)

const (
	// WorkflowFile is the multi-phase workflow definition
	WorkflowFile = "chaos-workflow.yaml"
	// rbacFile holds access manifests, not an experiment
	rbacFile = "rbac.yaml"
)

// Phase groups experiment definitions by maturity
type Phase string

const (
	PhaseBasic    Phase = "phase2"
	PhaseAdvanced Phase = "phase3"
)

var phaseExperiments = map[Phase][]string{
	PhaseBasic:    {"pod-delete", "cpu-hog", "memory-hog", "network-latency"},
	PhaseAdvanced: {"network-partition", "disk-stress", "custom-chaos"},
}

// pacing between consecutive experiments of a phase run
var phasePause = map[Phase]time.Duration{
	PhaseBasic:    10 * time.Second,
	PhaseAdvanced: 15 * time.Second,
}

// DefinitionPath resolves the manifest file of an experiment identity
func (c *Controller) DefinitionPath(name string) string {
	return filepath.Join(c.cfg.ExperimentsDir, name+".yaml")
}

// ListDefinitions enumerates the experiment manifests available on disk
func (c *Controller) ListDefinitions() ([]string, error) {
	entries, err := os.ReadDir(c.cfg.ExperimentsDir)
	if err != nil {
		return nil, cerrors.Error{
			ErrorCode: cerrors.ErrorTypeNotFound,
			Target:    c.cfg.ExperimentsDir,
			Reason:    err.Error(),
		}
	}
	var experiments []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".yaml") || name == rbacFile {
			continue
		}
		experiments = append(experiments, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(experiments)
	return experiments, nil
}

// RunPhase runs every available experiment of the phase in sequence, with a
// pause between experiments so the application can settle
func (c *Controller) RunPhase(ctx context.Context, phase Phase) error {
	names, ok := phaseExperiments[phase]
	if !ok {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInvalidArgument,
			Target:    string(phase),
			Reason:    "unknown experiment phase",
		}
	}
	log.Infof("Running %v experiments", phase)

	for i, name := range names {
		if _, err := os.Stat(c.DefinitionPath(name)); err != nil {
			log.Warnf("Experiment %v not found, skipping", name)
			continue
		}
		if i > 0 {
			time.Sleep(phasePause[phase])
		}
		log.Infof("--- Running %v ---", name)
		if _, err := c.Apply(ctx, name); err != nil {
			log.Errorf("Experiment %v failed, err: %v", name, err)
			continue
		}
		if _, err := c.Monitor(ctx, name); err != nil {
			log.Warnf("Unable to monitor %v, err: %v", name, err)
		}
	}
	return nil
}

// RunWorkflow applies the comprehensive multi-phase workflow and reports the
// state of every engine it spawned
func (c *Controller) RunWorkflow(ctx context.Context) error {
	workflowPath := filepath.Join(c.cfg.ExperimentsDir, WorkflowFile)
	if _, err := os.Stat(workflowPath); err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeNotFound,
			Phase:     "Workflow",
			Target:    workflowPath,
			Reason:    "workflow file not found",
		}
	}

	log.Info("Running comprehensive chaos workflow")
	if err := c.exec.ApplyManifest(ctx, workflowPath, c.cfg.AppNamespace); err != nil {
		return stacktrace.Propagate(err, "failed to apply workflow")
	}

	log.Info("Monitoring comprehensive workflow...")
	snapshots, err := c.Running(ctx, c.cfg.AppNamespace)
	if err != nil {
		log.Warnf("Unable to list workflow engines, err: %v", err)
		return nil
	}
	for _, snapshot := range snapshots {
		log.Infof("Engine %v: %v", snapshot.Name, snapshot.Engine)
	}
	return nil
}
