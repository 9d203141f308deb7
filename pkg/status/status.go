package status

import (
	"context"
	"fmt"
	"time"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"
	logrus "github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
	"github.com/chaos-framework/chaos-orchestrator/pkg/utils/retry"
)

// IsPodReady counts a pod as ready iff it is running and carries a Ready=True
// condition
func IsPodReady(pod corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, condition := range pod.Status.Conditions {
		if condition.Type == corev1.PodReady && condition.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// CountReadyPods returns the number of ready pods in the list
func CountReadyPods(pods []corev1.Pod) int {
	ready := 0
	for _, pod := range pods {
		if IsPodReady(pod) {
			ready++
		}
	}
	return ready
}

// WaitForPods polls until the pods matching labelSelector are ready. With a
// positive expectedCount the ready count must equal it, otherwise every listed
// pod must be ready and at least one must exist. A failed list is logged and
// treated as not-ready. The condition holding on the first poll returns
// without sleeping.
func WaitForPods(ctx context.Context, namespace, labelSelector string, expectedCount, timeout, interval int, clients clients.ClientSets) error {
	log.Infof("[Status]: Waiting for pods in namespace %v (timeout: %vs)", namespace, timeout)
	start := time.Now()

	err := retry.
		Times(pollAttempts(timeout, interval)).
		Wait(time.Duration(interval) * time.Second).
		BreakOn(aborted(ctx)).
		Try(func(attempt uint) error {
			podList, err := clients.KubeClient.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
			if err != nil {
				log.Warnf("[Status]: Unable to list pods, err: %v", err)
				return fmt.Errorf("unable to list pods: %v", err)
			}
			total := len(podList.Items)
			if expectedCount > 0 && total != expectedCount {
				return fmt.Errorf("pod count mismatch: expected %v, found %v", expectedCount, total)
			}
			ready := CountReadyPods(podList.Items)
			switch {
			case expectedCount > 0 && ready == expectedCount:
			case expectedCount <= 0 && ready > 0 && ready == total:
			default:
				return fmt.Errorf("pods ready: %v/%v", ready, total)
			}
			log.InfoWithValues("[Status]: All pods are ready", logrus.Fields{
				"Namespace": namespace, "Ready": ready})
			return nil
		})
	return waitVerdict(ctx, err, namespace, start, timeout)
}

// WaitForDeployment polls until the deployment reports an Available=True
// condition and all desired replicas are ready
func WaitForDeployment(ctx context.Context, namespace, name string, timeout, interval int, clients clients.ClientSets) error {
	log.Infof("[Status]: Waiting for deployment %v in namespace %v", name, namespace)
	start := time.Now()

	err := retry.
		Times(pollAttempts(timeout, interval)).
		Wait(time.Duration(interval) * time.Second).
		BreakOn(aborted(ctx)).
		Try(func(attempt uint) error {
			deployment, err := clients.KubeClient.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				log.Warnf("[Status]: Unable to get deployment %v, err: %v", name, err)
				return fmt.Errorf("unable to get deployment: %v", err)
			}
			available := false
			for _, condition := range deployment.Status.Conditions {
				if condition.Type == "Available" && condition.Status == corev1.ConditionTrue {
					available = true
					break
				}
			}
			replicas := deployment.Status.Replicas
			readyReplicas := deployment.Status.ReadyReplicas
			if available && readyReplicas == replicas && replicas > 0 {
				log.InfoWithValues("[Status]: Deployment is ready", logrus.Fields{
					"Deployment": name, "Replicas": fmt.Sprintf("%v/%v", readyReplicas, replicas)})
				return nil
			}
			return fmt.Errorf("deployment %v not ready: %v/%v replicas", name, readyReplicas, replicas)
		})
	return waitVerdict(ctx, err, namespace, start, timeout)
}

// WaitForEngineStatus polls until the engine reports one of the given
// statuses. A missing engine is treated as not-ready, the resource may still
// be settling after apply.
func WaitForEngineStatus(ctx context.Context, namespace, name string, timeout, interval int, clients clients.ClientSets, states ...v1alpha1.EngineStatus) error {
	log.Infof("[Status]: Waiting for engine %v to reach status %v", name, states)
	start := time.Now()

	err := retry.
		Times(pollAttempts(timeout, interval)).
		Wait(time.Duration(interval) * time.Second).
		BreakOn(aborted(ctx)).
		Try(func(attempt uint) error {
			engine, err := clients.LitmusClient.ChaosEngines(namespace).Get(ctx, name, metav1.GetOptions{})
			if err != nil {
				log.Warnf("[Status]: Unable to get engine %v, err: %v", name, err)
				return fmt.Errorf("unable to get engine: %v", err)
			}
			for _, state := range states {
				if engine.Status.EngineStatus == state {
					log.InfoWithValues("[Status]: Engine reached the awaited status", logrus.Fields{
						"Engine": name, "Status": engine.Status.EngineStatus})
					return nil
				}
			}
			return fmt.Errorf("engine %v is in status %q", name, engine.Status.EngineStatus)
		})
	return waitVerdict(ctx, err, namespace, start, timeout)
}

// pollAttempts converts a timeout/interval pair into a retry count. The
// first attempt runs at t=0 and only inter-attempt sleeps advance the clock,
// so timeout/interval sleeps need timeout/interval+1 attempts — the final
// verdict then lands at ~timeout, never before it.
func pollAttempts(timeout, interval int) uint {
	if interval <= 0 {
		interval = 1
	}
	attempts := timeout/interval + 1
	if attempts < 1 {
		attempts = 1
	}
	return uint(attempts)
}

func aborted(ctx context.Context) func(error) bool {
	return func(error) bool {
		return ctx.Err() != nil
	}
}

func waitVerdict(ctx context.Context, err error, namespace string, start time.Time, timeout int) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeGeneric,
			Target:    namespace,
			Reason:    fmt.Sprintf("wait aborted: %v", ctx.Err()),
		}
	}
	elapsed := time.Since(start).Round(time.Second)
	log.Errorf("Timeout waiting in namespace %v after %v: %v", namespace, elapsed, err)
	return cerrors.Error{
		ErrorCode: cerrors.ErrorTypeWaitTimeout,
		Target:    namespace,
		Reason:    fmt.Sprintf("condition not met within %vs (elapsed %v): %v", timeout, elapsed, err),
	}
}
