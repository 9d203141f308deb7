package scheduler

import (
	"context"
	"fmt"
	"os"

	"github.com/palantir/stacktrace"
	logrus "github.com/sirupsen/logrus"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/cluster"
	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
	"github.com/chaos-framework/chaos-orchestrator/pkg/validate"
)

const (
	// schedulePrefix names the recurring-job resource after its experiment
	schedulePrefix = "chaos-"
	// scheduleSelector labels every schedule the orchestrator owns
	scheduleSelector = "app=chaos-scheduler"
	runnerImage      = "bitnami/kubectl:latest"
)

// ScheduleEntry is a read-through projection of one recurring experiment
type ScheduleEntry struct {
	Name     string       `json:"name"`
	Schedule string       `json:"schedule"`
	LastRun  *metav1.Time `json:"lastRun,omitempty"`
	Active   int          `json:"active"`
}

// Scheduler manages recurring chaos experiments through cluster CronJobs
type Scheduler struct {
	cfg  config.Config
	exec *cluster.Executor
}

// New builds a Scheduler sharing the given executor
func New(cfg config.Config, exec *cluster.Executor) *Scheduler {
	return &Scheduler{cfg: cfg, exec: exec}
}

// CreateSchedule builds and applies a recurring job that re-applies the
// experiment definition on the given cadence. The generated job forbids
// concurrent runs so chaos cannot pile up on a degraded cluster.
func (s *Scheduler) CreateSchedule(ctx context.Context, experimentName, schedule, definitionPath, namespace string) error {
	experimentName, err := validate.ExperimentName(experimentName)
	if err != nil {
		return err
	}
	if namespace == "" {
		namespace = s.cfg.AppNamespace
	}
	namespace, err = validate.Namespace(namespace)
	if err != nil {
		return err
	}
	if err := validate.CronSchedule(schedule); err != nil {
		return err
	}

	if definitionPath == "" {
		definitionPath = fmt.Sprintf("%s/%s.yaml", s.cfg.ExperimentsDir, experimentName)
	}
	manifest, err := os.ReadFile(definitionPath)
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeNotFound,
			Phase:     "Schedule",
			Target:    definitionPath,
			Reason:    "experiment definition file not found",
		}
	}

	cronJob := s.buildCronJob(experimentName, schedule, namespace, string(manifest))
	if err := s.exec.CreateOrUpdateCronJob(ctx, cronJob); err != nil {
		return stacktrace.Propagate(err, "failed to create schedule for %v", experimentName)
	}

	log.InfoWithValues("Created scheduled experiment", logrus.Fields{
		"Experiment": experimentName,
		"Schedule":   schedule,
		"Namespace":  namespace,
	})
	return nil
}

// DeleteSchedule removes the recurring job of an experiment. A missing
// schedule is reported, not raised.
func (s *Scheduler) DeleteSchedule(ctx context.Context, experimentName, namespace string) (bool, error) {
	experimentName, err := validate.ExperimentName(experimentName)
	if err != nil {
		return false, err
	}
	if namespace == "" {
		namespace = s.cfg.AppNamespace
	}
	namespace, err = validate.Namespace(namespace)
	if err != nil {
		return false, err
	}

	if err := s.exec.DeleteCronJob(ctx, namespace, schedulePrefix+experimentName); err != nil {
		if cerrors.IsType(err, cerrors.ErrorTypeNotFound) {
			log.Warnf("Scheduled experiment not found: %v", experimentName)
			return false, nil
		}
		return false, stacktrace.Propagate(err, "failed to delete schedule for %v", experimentName)
	}
	log.Infof("Deleted scheduled experiment: %v", experimentName)
	return true, nil
}

// ListSchedules lists the orchestrator-owned recurring jobs. Zero results is
// a normal outcome.
func (s *Scheduler) ListSchedules(ctx context.Context, namespace string) ([]ScheduleEntry, error) {
	if namespace == "" {
		namespace = s.cfg.AppNamespace
	}
	namespace, err := validate.Namespace(namespace)
	if err != nil {
		return nil, err
	}

	cronJobs, err := s.exec.ListCronJobs(ctx, namespace, scheduleSelector)
	if err != nil {
		return nil, stacktrace.Propagate(err, "failed to list schedules in %v", namespace)
	}
	entries := make([]ScheduleEntry, 0, len(cronJobs.Items))
	for _, cronJob := range cronJobs.Items {
		entries = append(entries, ScheduleEntry{
			Name:     cronJob.Name,
			Schedule: cronJob.Spec.Schedule,
			LastRun:  cronJob.Status.LastScheduleTime,
			Active:   len(cronJob.Status.Active),
		})
	}
	return entries, nil
}

func (s *Scheduler) buildCronJob(experimentName, schedule, namespace, manifest string) *batchv1.CronJob {
	labels := map[string]string{
		"app":        "chaos-scheduler",
		"experiment": experimentName,
	}
	historyLimit := int32(3)

	return &batchv1.CronJob{
		ObjectMeta: metav1.ObjectMeta{
			Name:      schedulePrefix + experimentName,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: batchv1.CronJobSpec{
			Schedule:                   schedule,
			ConcurrencyPolicy:          batchv1.ForbidConcurrent,
			SuccessfulJobsHistoryLimit: &historyLimit,
			FailedJobsHistoryLimit:     &historyLimit,
			JobTemplate: batchv1.JobTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: batchv1.JobSpec{
					Template: corev1.PodTemplateSpec{
						ObjectMeta: metav1.ObjectMeta{
							Labels: labels,
						},
						Spec: corev1.PodSpec{
							ServiceAccountName: s.cfg.ChaosServiceAccount,
							RestartPolicy:      corev1.RestartPolicyOnFailure,
							Containers: []corev1.Container{
								{
									Name:    "chaos-runner",
									Image:   runnerImage,
									Command: []string{"/bin/sh"},
									Args: []string{
										"-c",
										fmt.Sprintf("kubectl apply -f - <<'EOF'\n%s\nEOF", manifest),
									},
								},
							},
						},
					},
				},
			},
		},
	}
}
