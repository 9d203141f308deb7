package events

import (
	"context"
	"time"

	apiv1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	clientTypes "k8s.io/apimachinery/pkg/types"

	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
)

const (
	// ReasonApplied marks the apply transition of an experiment
	ReasonApplied = "ExperimentApplied"
	// ReasonStopped marks the stop transition of an experiment
	ReasonStopped = "ExperimentStopped"
	// ReasonCleanup marks the best-effort namespace sweep
	ReasonCleanup = "ExperimentCleanup"
)

// EventDetails collects the attributes of an orchestration event
type EventDetails struct {
	Message    string
	Reason     string
	EngineName string
	Namespace  string
	EngineUID  clientTypes.UID
}

// CreateEvents create the events against the fault-injection engine
func CreateEvents(ctx context.Context, eventsDetails *EventDetails, clients clients.ClientSets) error {
	event := &apiv1.Event{
		ObjectMeta: metav1.ObjectMeta{
			Name:      eventsDetails.Reason + string(eventsDetails.EngineUID),
			Namespace: eventsDetails.Namespace,
		},
		Source: apiv1.EventSource{
			Component: "chaos-orchestrator",
		},
		Message:        eventsDetails.Message,
		Reason:         eventsDetails.Reason,
		Type:           "Normal",
		Count:          1,
		FirstTimestamp: metav1.Time{Time: time.Now()},
		LastTimestamp:  metav1.Time{Time: time.Now()},
		InvolvedObject: apiv1.ObjectReference{
			APIVersion: "litmuschaos.io/v1alpha1",
			Kind:       "ChaosEngine",
			Name:       eventsDetails.EngineName,
			Namespace:  eventsDetails.Namespace,
			UID:        eventsDetails.EngineUID,
		},
	}

	_, err := clients.KubeClient.CoreV1().Events(eventsDetails.Namespace).Create(ctx, event, metav1.CreateOptions{})
	return err
}

// GenerateEvents creates the event or bumps the count on an existing one
func GenerateEvents(ctx context.Context, eventsDetails *EventDetails, clients clients.ClientSets) error {
	eventName := eventsDetails.Reason + string(eventsDetails.EngineUID)
	event, err := clients.KubeClient.CoreV1().Events(eventsDetails.Namespace).Get(ctx, eventName, metav1.GetOptions{})
	if err != nil {
		if k8serrors.IsNotFound(err) {
			return CreateEvents(ctx, eventsDetails, clients)
		}
		return err
	}

	event.Count = event.Count + 1
	event.LastTimestamp = metav1.Time{Time: time.Now()}
	_, err = clients.KubeClient.CoreV1().Events(eventsDetails.Namespace).Update(ctx, event, metav1.UpdateOptions{})
	return err
}
