package status

import (
	"context"
	"testing"
	"time"

	litmusfake "github.com/litmuschaos/chaos-operator/pkg/client/clientset/versioned/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
)

func readyPod(name, namespace string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodReady, Status: corev1.ConditionTrue},
			},
		},
	}
}

func pendingPod(name, namespace string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}
}

func TestIsPodReady(t *testing.T) {
	labels := map[string]string{"app": "flask-app"}

	assert.True(t, IsPodReady(*readyPod("a", "ns", labels)))
	assert.False(t, IsPodReady(*pendingPod("b", "ns", labels)))

	// running without a Ready condition does not count
	running := readyPod("c", "ns", labels)
	running.Status.Conditions = nil
	assert.False(t, IsPodReady(*running))

	// succeeded pods are no longer ready even with stale conditions
	done := readyPod("d", "ns", labels)
	done.Status.Phase = corev1.PodSucceeded
	assert.False(t, IsPodReady(*done))
}

func TestWaitForPods_ReadyOnFirstPoll(t *testing.T) {
	labels := map[string]string{"app": "flask-app"}
	clientSets := clients.ClientSets{
		KubeClient: fake.NewSimpleClientset(
			readyPod("flask-1", "hello-world-app", labels),
			readyPod("flask-2", "hello-world-app", labels),
		),
	}

	start := time.Now()
	err := WaitForPods(context.Background(), "hello-world-app", "app=flask-app", 0, 60, 5, clientSets)
	require.NoError(t, err)
	// condition held on the first poll, no interval sleep allowed
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitForPods_CountMismatchTimesOut(t *testing.T) {
	labels := map[string]string{"app": "flask-app"}
	clientSets := clients.ClientSets{
		KubeClient: fake.NewSimpleClientset(readyPod("flask-1", "hello-world-app", labels)),
	}

	err := WaitForPods(context.Background(), "hello-world-app", "app=flask-app", 3, 2, 1, clientSets)
	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeWaitTimeout),
		"expected WAIT_TIMEOUT, got %v", err)
}

func TestWaitForPods_NotReadyTimesOut(t *testing.T) {
	labels := map[string]string{"app": "flask-app"}
	clientSets := clients.ClientSets{
		KubeClient: fake.NewSimpleClientset(
			readyPod("flask-1", "hello-world-app", labels),
			pendingPod("flask-2", "hello-world-app", labels),
		),
	}

	err := WaitForPods(context.Background(), "hello-world-app", "app=flask-app", 0, 2, 1, clientSets)
	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeWaitTimeout))
}

func TestWaitForPods_TimeoutElapsesFully(t *testing.T) {
	clientSets := clients.ClientSets{KubeClient: fake.NewSimpleClientset()}

	start := time.Now()
	err := WaitForPods(context.Background(), "hello-world-app", "app=flask-app", 0, 2, 1, clientSets)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeWaitTimeout))
	// the verdict must not land before the configured timeout
	assert.GreaterOrEqual(t, elapsed, 2*time.Second)
	// overshoot is bounded by one interval
	assert.Less(t, elapsed, 4*time.Second)
}

func TestWaitForPods_NoPodsIsNotReady(t *testing.T) {
	clientSets := clients.ClientSets{KubeClient: fake.NewSimpleClientset()}

	err := WaitForPods(context.Background(), "hello-world-app", "app=flask-app", 0, 2, 1, clientSets)
	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeWaitTimeout))
}

func TestWaitForDeployment(t *testing.T) {
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "flask-app", Namespace: "hello-world-app"},
		Status: appsv1.DeploymentStatus{
			Replicas:      2,
			ReadyReplicas: 2,
			Conditions: []appsv1.DeploymentCondition{
				{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
			},
		},
	}
	clientSets := clients.ClientSets{KubeClient: fake.NewSimpleClientset(deployment)}

	err := WaitForDeployment(context.Background(), "hello-world-app", "flask-app", 10, 1, clientSets)
	require.NoError(t, err)
}

func TestWaitForDeployment_ZeroReplicasNotReady(t *testing.T) {
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "flask-app", Namespace: "hello-world-app"},
		Status: appsv1.DeploymentStatus{
			Conditions: []appsv1.DeploymentCondition{
				{Type: appsv1.DeploymentAvailable, Status: corev1.ConditionTrue},
			},
		},
	}
	clientSets := clients.ClientSets{KubeClient: fake.NewSimpleClientset(deployment)}

	err := WaitForDeployment(context.Background(), "hello-world-app", "flask-app", 2, 1, clientSets)
	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeWaitTimeout))
}

func TestWaitForEngineStatus(t *testing.T) {
	engine := &v1alpha1.ChaosEngine{
		ObjectMeta: metav1.ObjectMeta{Name: "pod-delete-chaos", Namespace: "hello-world-app"},
		Status: v1alpha1.ChaosEngineStatus{
			EngineStatus: v1alpha1.EngineStatusInitialized,
		},
	}
	clientSets := clients.ClientSets{
		LitmusClient: litmusfake.NewSimpleClientset(engine).LitmuschaosV1alpha1(),
	}

	err := WaitForEngineStatus(context.Background(), "hello-world-app", "pod-delete-chaos", 10, 1, clientSets,
		v1alpha1.EngineStatusInitialized, v1alpha1.EngineStatusCompleted)
	require.NoError(t, err)
}

func TestWaitForEngineStatus_MissingEngineTimesOut(t *testing.T) {
	clientSets := clients.ClientSets{
		LitmusClient: litmusfake.NewSimpleClientset().LitmuschaosV1alpha1(),
	}

	err := WaitForEngineStatus(context.Background(), "hello-world-app", "missing", 2, 1, clientSets,
		v1alpha1.EngineStatusInitialized)
	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeWaitTimeout))
}

func TestWaitForPods_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	clientSets := clients.ClientSets{KubeClient: fake.NewSimpleClientset()}

	err := WaitForPods(ctx, "hello-world-app", "app=flask-app", 0, 10, 1, clientSets)
	require.Error(t, err)
	assert.True(t, cerrors.IsType(err, cerrors.ErrorTypeGeneric))
}
