package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/palantir/stacktrace"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cluster"
	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
	"github.com/chaos-framework/chaos-orchestrator/pkg/experiment"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
	"github.com/chaos-framework/chaos-orchestrator/pkg/status"
)

const (
	// SectionUnavailable marks a section whose cluster query failed
	SectionUnavailable = "unavailable"

	reportTimeLayout = "20060102_150405"
)

// ExperimentSection summarizes one engine inside a report
type ExperimentSection struct {
	Status      string                 `json:"status"`
	Experiments []experiment.SubStatus `json:"experiments,omitempty"`
}

// ApplicationSection summarizes the target application's pod fleet
type ApplicationSection struct {
	Status    string `json:"status"`
	TotalPods int    `json:"totalPods"`
	ReadyPods int    `json:"readyPods"`
}

// ExperimentReport is the aggregate cluster snapshot written to disk
type ExperimentReport struct {
	Timestamp   time.Time                    `json:"timestamp"`
	Namespace   string                       `json:"namespace"`
	Experiments map[string]ExperimentSection `json:"experiments"`
	Application ApplicationSection           `json:"application"`
}

// Aggregator assembles point-in-time reports from the cluster
type Aggregator struct {
	cfg  config.Config
	exec *cluster.Executor
}

// New builds an Aggregator sharing the given executor
func New(cfg config.Config, exec *cluster.Executor) *Aggregator {
	return &Aggregator{cfg: cfg, exec: exec}
}

// GenerateReport collects engine and application state into a report. A
// failed sub-query degrades its own section to "unavailable" instead of
// failing the whole report, so the result is never nil.
func (a *Aggregator) GenerateReport(ctx context.Context, namespace string) *ExperimentReport {
	if namespace == "" {
		namespace = a.cfg.AppNamespace
	}
	report := &ExperimentReport{
		Timestamp:   time.Now(),
		Namespace:   namespace,
		Experiments: map[string]ExperimentSection{},
	}

	engines, err := a.exec.ListEngines(ctx, namespace)
	if err != nil {
		log.Warnf("Report: engine listing unavailable: %v", err)
		report.Experiments[SectionUnavailable] = ExperimentSection{Status: SectionUnavailable}
	} else {
		for i := range engines.Items {
			engine := &engines.Items[i]
			section := ExperimentSection{
				Status: string(experiment.EngineStatusFrom(engine)),
			}
			for _, exp := range engine.Status.Experiments {
				section.Experiments = append(section.Experiments, experiment.SubStatus{
					Name:    exp.Name,
					Status:  string(exp.Status),
					Verdict: string(exp.Verdict),
				})
			}
			report.Experiments[engine.Name] = section
		}
	}

	pods, err := a.exec.ListPods(ctx, namespace, a.cfg.AppLabel)
	if err != nil {
		log.Warnf("Report: application pods unavailable: %v", err)
		report.Application = ApplicationSection{Status: SectionUnavailable}
	} else {
		report.Application = ApplicationSection{
			Status:    "ok",
			TotalPods: len(pods.Items),
			ReadyPods: status.CountReadyPods(pods.Items),
		}
	}
	return report
}

// Save writes the report as indented JSON. An empty path picks a
// timestamped filename in the working directory.
func (a *Aggregator) Save(report *ExperimentReport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("chaos_report_%s.json", report.Timestamp.Format(reportTimeLayout))
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", stacktrace.Propagate(err, "failed to encode report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", stacktrace.Propagate(err, "failed to write report to %v", path)
	}
	log.Infof("Chaos report saved: %v", path)
	return path, nil
}
