package clients

import (
	chaosClient "github.com/litmuschaos/chaos-operator/pkg/client/clientset/versioned/typed/litmuschaos/v1alpha1"
	"github.com/pkg/errors"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ClientSets is a collection of clientSets and kubeConfig needed by the
// orchestrator. The clients are interface-typed so that the fake clientsets
// can stand in during tests.
type ClientSets struct {
	KubeClient    kubernetes.Interface
	LitmusClient  chaosClient.LitmuschaosV1alpha1Interface
	DynamicClient dynamic.Interface
	KubeConfig    *rest.Config
}

// GenerateClientSetFromKubeConfig will generate all ClientSets (k8s, litmus,
// dynamic) as well as the KubeConfig. An empty kubeconfig path falls back to
// the in-cluster config.
func (clientSets *ClientSets) GenerateClientSetFromKubeConfig(kubeconfig string) error {
	config, err := clientcmd.BuildConfigFromFlags("", kubeconfig)
	if err != nil {
		return errors.Wrap(err, "unable to build kubeconfig")
	}
	k8sClientSet, err := kubernetes.NewForConfig(config)
	if err != nil {
		return errors.Wrap(err, "unable to generate kubernetes clientSet")
	}
	litmusClientSet, err := chaosClient.NewForConfig(config)
	if err != nil {
		return errors.Wrap(err, "unable to generate litmus clientSet")
	}
	dynamicClientSet, err := dynamic.NewForConfig(config)
	if err != nil {
		return errors.Wrap(err, "unable to generate dynamic clientSet")
	}
	clientSets.KubeClient = k8sClientSet
	clientSets.LitmusClient = litmusClientSet
	clientSets.DynamicClient = dynamicClientSet
	clientSets.KubeConfig = config
	return nil
}
