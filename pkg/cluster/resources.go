package cluster

import (
	"context"
	"fmt"

	"github.com/litmuschaos/chaos-operator/api/litmuschaos/v1alpha1"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientTypes "k8s.io/apimachinery/pkg/types"
)

// GetEngine fetches one fault-injection engine resource
func (e *Executor) GetEngine(ctx context.Context, namespace, name string) (*v1alpha1.ChaosEngine, error) {
	var engine *v1alpha1.ChaosEngine
	err := e.Execute(ctx, Operation{
		Verb:   "get",
		Target: fmt.Sprintf("chaosengine/%s", name),
		Run: func(ctx context.Context) error {
			var err error
			engine, err = e.Clients.LitmusClient.ChaosEngines(namespace).Get(ctx, name, metav1.GetOptions{})
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return engine, nil
}

// ListEngines lists all fault-injection engines in the namespace
func (e *Executor) ListEngines(ctx context.Context, namespace string) (*v1alpha1.ChaosEngineList, error) {
	var engines *v1alpha1.ChaosEngineList
	err := e.Execute(ctx, Operation{
		Verb:   "list",
		Target: "chaosengines",
		Run: func(ctx context.Context) error {
			var err error
			engines, err = e.Clients.LitmusClient.ChaosEngines(namespace).List(ctx, metav1.ListOptions{})
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return engines, nil
}

// PatchEngineState merge-patches the desired state of an engine
func (e *Executor) PatchEngineState(ctx context.Context, namespace, name string, state v1alpha1.EngineState) error {
	mergePatch := []byte(fmt.Sprintf(`{"spec":{"engineState":"%s"}}`, state))
	return e.Execute(ctx, Operation{
		Verb:   "patch",
		Target: fmt.Sprintf("chaosengine/%s", name),
		Run: func(ctx context.Context) error {
			_, err := e.Clients.LitmusClient.ChaosEngines(namespace).Patch(ctx, name, clientTypes.MergePatchType, mergePatch, metav1.PatchOptions{})
			return err
		},
	})
}

// DeleteEngine deletes an engine resource
func (e *Executor) DeleteEngine(ctx context.Context, namespace, name string) error {
	return e.Execute(ctx, Operation{
		Verb:   "delete",
		Target: fmt.Sprintf("chaosengine/%s", name),
		Run: func(ctx context.Context) error {
			return e.Clients.LitmusClient.ChaosEngines(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		},
	})
}

// ListPods lists pods, optionally filtered by a label selector
func (e *Executor) ListPods(ctx context.Context, namespace, labelSelector string) (*corev1.PodList, error) {
	var pods *corev1.PodList
	err := e.Execute(ctx, Operation{
		Verb:   "list",
		Target: fmt.Sprintf("pods{%s}", labelSelector),
		Run: func(ctx context.Context) error {
			var err error
			pods, err = e.Clients.KubeClient.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return pods, nil
}

// GetDeployment fetches a deployment
func (e *Executor) GetDeployment(ctx context.Context, namespace, name string) (*appsv1.Deployment, error) {
	var deployment *appsv1.Deployment
	err := e.Execute(ctx, Operation{
		Verb:   "get",
		Target: fmt.Sprintf("deployment/%s", name),
		Run: func(ctx context.Context) error {
			var err error
			deployment, err = e.Clients.KubeClient.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return deployment, nil
}

// CreateOrUpdateCronJob applies a scheduled-job resource, converging on update
// when it already exists
func (e *Executor) CreateOrUpdateCronJob(ctx context.Context, cronJob *batchv1.CronJob) error {
	return e.Execute(ctx, Operation{
		Verb:   "apply",
		Target: fmt.Sprintf("cronjob/%s", cronJob.Name),
		Run: func(ctx context.Context) error {
			cronJobs := e.Clients.KubeClient.BatchV1().CronJobs(cronJob.Namespace)
			_, err := cronJobs.Create(ctx, cronJob, metav1.CreateOptions{})
			if err == nil || !k8serrors.IsAlreadyExists(err) {
				return err
			}
			existing, err := cronJobs.Get(ctx, cronJob.Name, metav1.GetOptions{})
			if err != nil {
				return err
			}
			updated := cronJob.DeepCopy()
			updated.ResourceVersion = existing.ResourceVersion
			_, err = cronJobs.Update(ctx, updated, metav1.UpdateOptions{})
			return err
		},
	})
}

// ListCronJobs lists scheduled-job resources matching the label selector
func (e *Executor) ListCronJobs(ctx context.Context, namespace, labelSelector string) (*batchv1.CronJobList, error) {
	var cronJobs *batchv1.CronJobList
	err := e.Execute(ctx, Operation{
		Verb:   "list",
		Target: fmt.Sprintf("cronjobs{%s}", labelSelector),
		Run: func(ctx context.Context) error {
			var err error
			cronJobs, err = e.Clients.KubeClient.BatchV1().CronJobs(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return cronJobs, nil
}

// DeleteCronJob deletes a scheduled-job resource
func (e *Executor) DeleteCronJob(ctx context.Context, namespace, name string) error {
	return e.Execute(ctx, Operation{
		Verb:   "delete",
		Target: fmt.Sprintf("cronjob/%s", name),
		Run: func(ctx context.Context) error {
			return e.Clients.KubeClient.BatchV1().CronJobs(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		},
	})
}
