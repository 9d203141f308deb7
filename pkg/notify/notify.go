package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kyokomi/emoji"

	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
)

// Notifier is the collaborator the lifecycle controller reports to. All
// notifications are fire-and-forget, a failed delivery must never fail the
// core operation.
type Notifier interface {
	NotifyStarted(name, namespace string)
	NotifyCompleted(name, namespace string, success bool, details string)
	NotifyError(name, namespace string, err error)
}

// New selects the notifier implementation from the configuration
func New(cfg config.Config) Notifier {
	if !cfg.NotificationsEnabled {
		return NoopNotifier{}
	}
	if cfg.WebhookURL != "" {
		return &WebhookNotifier{
			URL:    cfg.WebhookURL,
			Client: &http.Client{Timeout: 10 * time.Second},
		}
	}
	return LogNotifier{}
}

// NoopNotifier drops every notification
type NoopNotifier struct{}

func (NoopNotifier) NotifyStarted(name, namespace string) {}

func (NoopNotifier) NotifyCompleted(name, namespace string, success bool, details string) {}

func (NoopNotifier) NotifyError(name, namespace string, err error) {}

// LogNotifier surfaces notifications through the process log
type LogNotifier struct{}

func (LogNotifier) NotifyStarted(name, namespace string) {
	log.Infof(emoji.Sprintf(":rocket: Experiment %v started in namespace %v", name, namespace))
}

func (LogNotifier) NotifyCompleted(name, namespace string, success bool, details string) {
	if success {
		log.Infof(emoji.Sprintf(":white_check_mark: Experiment %v completed in namespace %v: %v", name, namespace, details))
		return
	}
	log.Warnf(emoji.Sprintf(":x: Experiment %v failed in namespace %v: %v", name, namespace, details))
}

func (LogNotifier) NotifyError(name, namespace string, err error) {
	log.Errorf(emoji.Sprintf(":rotating_light: Experiment %v error in namespace %v: %v", name, namespace, err))
}

// WebhookNotifier posts flat JSON documents to a configured endpoint
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

type webhookPayload struct {
	Event      string `json:"event"`
	Experiment string `json:"experiment"`
	Namespace  string `json:"namespace"`
	Success    *bool  `json:"success,omitempty"`
	Details    string `json:"details,omitempty"`
	Timestamp  string `json:"timestamp"`
}

func (n *WebhookNotifier) NotifyStarted(name, namespace string) {
	n.post(webhookPayload{Event: "started", Experiment: name, Namespace: namespace})
}

func (n *WebhookNotifier) NotifyCompleted(name, namespace string, success bool, details string) {
	n.post(webhookPayload{Event: "completed", Experiment: name, Namespace: namespace, Success: &success, Details: details})
}

func (n *WebhookNotifier) NotifyError(name, namespace string, err error) {
	n.post(webhookPayload{Event: "error", Experiment: name, Namespace: namespace, Details: err.Error()})
}

func (n *WebhookNotifier) post(payload webhookPayload) {
	payload.Timestamp = time.Now().Format(time.RFC3339)
	body, err := json.Marshal(payload)
	if err != nil {
		log.Warnf("Unable to marshal notification payload, err: %v", err)
		return
	}
	resp, err := n.Client.Post(n.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Warnf("Unable to deliver %v notification for %v, err: %v", payload.Event, payload.Experiment, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warnf("Notification endpoint returned %v for %v notification of %v", resp.StatusCode, payload.Event, payload.Experiment)
	}
}
