package cluster

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	k8syaml "k8s.io/apimachinery/pkg/util/yaml"

	"github.com/chaos-framework/chaos-orchestrator/pkg/cerrors"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
)

// kindToResource maps the manifest kinds the orchestrator is allowed to apply
// onto their API resources
var kindToResource = map[string]schema.GroupVersionResource{
	"ChaosEngine":     {Group: "litmuschaos.io", Version: "v1alpha1", Resource: "chaosengines"},
	"ChaosExperiment": {Group: "litmuschaos.io", Version: "v1alpha1", Resource: "chaosexperiments"},
	"ChaosSchedule":   {Group: "litmuschaos.io", Version: "v1alpha1", Resource: "chaosschedules"},
	"Pod":             {Group: "", Version: "v1", Resource: "pods"},
	"Service":         {Group: "", Version: "v1", Resource: "services"},
	"ConfigMap":       {Group: "", Version: "v1", Resource: "configmaps"},
	"ServiceAccount":  {Group: "", Version: "v1", Resource: "serviceaccounts"},
	"Deployment":      {Group: "apps", Version: "v1", Resource: "deployments"},
	"StatefulSet":     {Group: "apps", Version: "v1", Resource: "statefulsets"},
	"Job":             {Group: "batch", Version: "v1", Resource: "jobs"},
	"CronJob":         {Group: "batch", Version: "v1", Resource: "cronjobs"},
}

// ApplyManifest applies every document of a YAML manifest file. Documents
// without a namespace land in defaultNamespace. Re-applying an existing
// resource converges via update, so a retried apply is safe.
func (e *Executor) ApplyManifest(ctx context.Context, manifestPath, defaultNamespace string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeNotFound,
			Phase:     "apply",
			Target:    manifestPath,
			Reason:    err.Error(),
		}
	}

	decoder := k8syaml.NewYAMLOrJSONDecoder(bytes.NewReader(data), 4096)
	for {
		var raw map[string]interface{}
		if err := decoder.Decode(&raw); err != nil {
			if err == io.EOF {
				return nil
			}
			return cerrors.Error{
				ErrorCode: cerrors.ErrorTypeInvalidArgument,
				Phase:     "apply",
				Target:    manifestPath,
				Reason:    fmt.Sprintf("unable to parse manifest: %v", err),
			}
		}
		if len(raw) == 0 {
			continue
		}
		obj := &unstructured.Unstructured{Object: raw}
		if err := e.applyObject(ctx, obj, defaultNamespace); err != nil {
			return err
		}
	}
}

func (e *Executor) applyObject(ctx context.Context, obj *unstructured.Unstructured, defaultNamespace string) error {
	gvr, known := kindToResource[obj.GetKind()]
	if !known {
		return cerrors.Error{
			ErrorCode: cerrors.ErrorTypeInvalidArgument,
			Phase:     "apply",
			Target:    obj.GetName(),
			Reason:    fmt.Sprintf("unsupported manifest kind %q", obj.GetKind()),
		}
	}
	namespace := obj.GetNamespace()
	if namespace == "" {
		namespace = defaultNamespace
		obj.SetNamespace(namespace)
	}

	return e.Execute(ctx, Operation{
		Verb:   "apply",
		Target: fmt.Sprintf("%s/%s", obj.GetKind(), obj.GetName()),
		Run: func(ctx context.Context) error {
			resource := e.Clients.DynamicClient.Resource(gvr).Namespace(namespace)
			_, err := resource.Create(ctx, obj, metav1.CreateOptions{})
			if err == nil {
				log.Infof("Applied %v/%v in namespace %v", obj.GetKind(), obj.GetName(), namespace)
				return nil
			}
			if !k8serrors.IsAlreadyExists(err) {
				return err
			}
			existing, err := resource.Get(ctx, obj.GetName(), metav1.GetOptions{})
			if err != nil {
				return err
			}
			obj.SetResourceVersion(existing.GetResourceVersion())
			if _, err := resource.Update(ctx, obj, metav1.UpdateOptions{}); err != nil {
				return err
			}
			log.Infof("Updated %v/%v in namespace %v", obj.GetKind(), obj.GetName(), namespace)
			return nil
		},
	})
}
