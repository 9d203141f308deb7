package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
	"github.com/chaos-framework/chaos-orchestrator/pkg/cluster"
	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
)

func newTestScheduler(t *testing.T) (*Scheduler, *fake.Clientset, config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.RetryDelay = 0
	cfg.ExperimentsDir = t.TempDir()

	kubeClient := fake.NewSimpleClientset()
	exec := cluster.NewExecutor(clients.ClientSets{KubeClient: kubeClient}, cfg)
	return New(cfg, exec), kubeClient, cfg
}

func writeDefinition(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	manifest := `apiVersion: litmuschaos.io/v1alpha1
kind: ChaosEngine
metadata:
  name: ` + name + `-chaos
`
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))
	return path
}

func TestCreateSchedule(t *testing.T) {
	sched, kubeClient, cfg := newTestScheduler(t)
	writeDefinition(t, cfg.ExperimentsDir, "pod-delete")

	err := sched.CreateSchedule(context.Background(), "pod-delete", "*/30 * * * *", "", "")
	require.NoError(t, err)

	cronJob, err := kubeClient.BatchV1().CronJobs(cfg.AppNamespace).
		Get(context.Background(), "chaos-pod-delete", metav1.GetOptions{})
	require.NoError(t, err)

	assert.Equal(t, "*/30 * * * *", cronJob.Spec.Schedule)
	assert.Equal(t, batchv1.ForbidConcurrent, cronJob.Spec.ConcurrencyPolicy)
	assert.Equal(t, "chaos-scheduler", cronJob.Labels["app"])
	assert.Equal(t, "pod-delete", cronJob.Labels["experiment"])
	require.NotNil(t, cronJob.Spec.SuccessfulJobsHistoryLimit)
	assert.Equal(t, int32(3), *cronJob.Spec.SuccessfulJobsHistoryLimit)

	podSpec := cronJob.Spec.JobTemplate.Spec.Template.Spec
	assert.Equal(t, cfg.ChaosServiceAccount, podSpec.ServiceAccountName)
	require.Len(t, podSpec.Containers, 1)
	// the job body carries the experiment manifest verbatim
	assert.Contains(t, podSpec.Containers[0].Args[1], "kind: ChaosEngine")
	assert.Contains(t, podSpec.Containers[0].Args[1], "pod-delete-chaos")
}

func TestCreateSchedule_ReapplyConverges(t *testing.T) {
	sched, kubeClient, cfg := newTestScheduler(t)
	writeDefinition(t, cfg.ExperimentsDir, "cpu-hog")

	ctx := context.Background()
	require.NoError(t, sched.CreateSchedule(ctx, "cpu-hog", "0 * * * *", "", ""))
	require.NoError(t, sched.CreateSchedule(ctx, "cpu-hog", "0 2 * * *", "", ""))

	cronJob, err := kubeClient.BatchV1().CronJobs(cfg.AppNamespace).
		Get(ctx, "chaos-cpu-hog", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "0 2 * * *", cronJob.Spec.Schedule)
}

func TestCreateSchedule_InvalidInputs(t *testing.T) {
	sched, _, cfg := newTestScheduler(t)
	writeDefinition(t, cfg.ExperimentsDir, "pod-delete")

	tests := []struct {
		name       string
		experiment string
		cron       string
	}{
		{name: "bad experiment name", experiment: "Pod Delete", cron: "0 * * * *"},
		{name: "bad cron", experiment: "pod-delete", cron: "whenever"},
		{name: "cron injection", experiment: "pod-delete", cron: "0 * * * *; rm -rf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sched.CreateSchedule(context.Background(), tt.experiment, tt.cron, "", "")
			require.Error(t, err)
			assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeInvalidArgument))
		})
	}
}

func TestCreateSchedule_MissingDefinition(t *testing.T) {
	sched, _, _ := newTestScheduler(t)

	err := sched.CreateSchedule(context.Background(), "unknown-exp", "0 * * * *", "", "")
	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeNotFound))
}

func TestDeleteSchedule(t *testing.T) {
	sched, _, cfg := newTestScheduler(t)
	writeDefinition(t, cfg.ExperimentsDir, "pod-delete")

	ctx := context.Background()
	require.NoError(t, sched.CreateSchedule(ctx, "pod-delete", "0 * * * *", "", ""))

	deleted, err := sched.DeleteSchedule(ctx, "pod-delete", "")
	require.NoError(t, err)
	assert.True(t, deleted)

	// deleting again is reported, not raised
	deleted, err = sched.DeleteSchedule(ctx, "pod-delete", "")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestListSchedules(t *testing.T) {
	sched, _, cfg := newTestScheduler(t)
	writeDefinition(t, cfg.ExperimentsDir, "pod-delete")
	writeDefinition(t, cfg.ExperimentsDir, "memory-hog")

	ctx := context.Background()

	// zero schedules is a normal outcome
	entries, err := sched.ListSchedules(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, sched.CreateSchedule(ctx, "pod-delete", "0 * * * *", "", ""))
	require.NoError(t, sched.CreateSchedule(ctx, "memory-hog", "*/15 * * * *", "", ""))

	entries, err = sched.ListSchedules(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := []string{entries[0].Name, entries[1].Name}
	assert.Contains(t, names, "chaos-pod-delete")
	assert.Contains(t, names, "chaos-memory-hog")
	for _, entry := range entries {
		assert.True(t, strings.HasPrefix(entry.Name, "chaos-"))
		assert.Zero(t, entry.Active)
	}
}
