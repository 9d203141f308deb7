package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
)

// Config carries the process-wide settings of the orchestrator. It is built
// once at startup and passed into each component's constructor, read-only
// afterwards.
type Config struct {
	// namespaces
	AppNamespace        string
	LitmusNamespace     string
	MonitoringNamespace string

	// chaos settings
	DefaultTimeout            int
	RetryAttempts             int
	RetryDelay                int
	CheckInterval             int
	GracePeriod               int
	DefaultExperimentDuration int
	DefaultChaosInterval      int

	// application under test
	AppLabel string

	// monitoring
	MonitoringEnabled bool
	MetricsAddr       string
	PrometheusURL     string
	GrafanaURL        string
	OTLPEndpoint      string

	// paths
	ExperimentsDir string
	ManifestsDir   string

	// kubernetes
	Kubeconfig          string
	ChaosServiceAccount string

	// notifications
	NotificationsEnabled bool
	WebhookURL           string
}

// Default returns a Config populated with the stock settings
func Default() Config {
	return Config{
		AppNamespace:              "hello-world-app",
		LitmusNamespace:           "litmus",
		MonitoringNamespace:       "monitoring",
		DefaultTimeout:            300,
		RetryAttempts:             3,
		RetryDelay:                1,
		CheckInterval:             5,
		GracePeriod:               5,
		DefaultExperimentDuration: 60,
		DefaultChaosInterval:      10,
		AppLabel:                  "app=flask-app",
		MonitoringEnabled:         true,
		MetricsAddr:               ":9190",
		PrometheusURL:             "http://prometheus:9090",
		GrafanaURL:                "http://grafana:3000",
		ExperimentsDir:            "experiments",
		ManifestsDir:              "manifests",
		ChaosServiceAccount:       "litmus-admin",
	}
}

// fileConfig mirrors the nested layout of config.yaml
type fileConfig struct {
	Namespaces struct {
		App        string `yaml:"app"`
		Litmus     string `yaml:"litmus"`
		Monitoring string `yaml:"monitoring"`
	} `yaml:"namespaces"`
	Chaos struct {
		DefaultTimeout            int `yaml:"default_timeout"`
		RetryAttempts             int `yaml:"retry_attempts"`
		RetryDelay                int `yaml:"retry_delay"`
		CheckInterval             int `yaml:"check_interval"`
		GracePeriod               int `yaml:"grace_period"`
		DefaultExperimentDuration int `yaml:"default_experiment_duration"`
		DefaultChaosInterval      int `yaml:"default_chaos_interval"`
	} `yaml:"chaos"`
	Application struct {
		Label string `yaml:"label"`
	} `yaml:"application"`
	Monitoring struct {
		Enabled       *bool  `yaml:"enabled"`
		MetricsAddr   string `yaml:"metrics_addr"`
		PrometheusURL string `yaml:"prometheus_url"`
		GrafanaURL    string `yaml:"grafana_url"`
		OTLPEndpoint  string `yaml:"otlp_endpoint"`
	} `yaml:"monitoring"`
	Paths struct {
		ExperimentsDir string `yaml:"experiments_dir"`
		ManifestsDir   string `yaml:"manifests_dir"`
	} `yaml:"paths"`
	Kubernetes struct {
		Kubeconfig          string `yaml:"kubeconfig"`
		ChaosServiceAccount string `yaml:"chaos_service_account"`
	} `yaml:"kubernetes"`
	Notifications struct {
		Enabled bool `yaml:"enabled"`
		Webhook struct {
			URL string `yaml:"url"`
		} `yaml:"webhook"`
	} `yaml:"notifications"`
}

// Load builds the Config from an optional YAML file overlaid with environment
// variables. A missing file is not an error, the defaults apply.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
			log.Warnf("Config file not found at %v, using defaults", configPath)
		case err != nil:
			return cfg, errors.Wrapf(err, "unable to read config file %v", configPath)
		default:
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return cfg, errors.Wrapf(err, "unable to parse config file %v", configPath)
			}
			cfg.applyFile(fc)
			log.Infof("Loaded configuration from %v", configPath)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(fc fileConfig) {
	setString(&c.AppNamespace, fc.Namespaces.App)
	setString(&c.LitmusNamespace, fc.Namespaces.Litmus)
	setString(&c.MonitoringNamespace, fc.Namespaces.Monitoring)
	setInt(&c.DefaultTimeout, fc.Chaos.DefaultTimeout)
	setInt(&c.RetryAttempts, fc.Chaos.RetryAttempts)
	setInt(&c.RetryDelay, fc.Chaos.RetryDelay)
	setInt(&c.CheckInterval, fc.Chaos.CheckInterval)
	setInt(&c.GracePeriod, fc.Chaos.GracePeriod)
	setInt(&c.DefaultExperimentDuration, fc.Chaos.DefaultExperimentDuration)
	setInt(&c.DefaultChaosInterval, fc.Chaos.DefaultChaosInterval)
	setString(&c.AppLabel, fc.Application.Label)
	if fc.Monitoring.Enabled != nil {
		c.MonitoringEnabled = *fc.Monitoring.Enabled
	}
	setString(&c.MetricsAddr, fc.Monitoring.MetricsAddr)
	setString(&c.PrometheusURL, fc.Monitoring.PrometheusURL)
	setString(&c.GrafanaURL, fc.Monitoring.GrafanaURL)
	setString(&c.OTLPEndpoint, fc.Monitoring.OTLPEndpoint)
	setString(&c.ExperimentsDir, fc.Paths.ExperimentsDir)
	setString(&c.ManifestsDir, fc.Paths.ManifestsDir)
	setString(&c.Kubeconfig, fc.Kubernetes.Kubeconfig)
	setString(&c.ChaosServiceAccount, fc.Kubernetes.ChaosServiceAccount)
	c.NotificationsEnabled = fc.Notifications.Enabled
	setString(&c.WebhookURL, fc.Notifications.Webhook.URL)
}

func (c *Config) applyEnv() {
	envString(&c.AppNamespace, "APP_NAMESPACE")
	envString(&c.LitmusNamespace, "LITMUS_NAMESPACE")
	envString(&c.MonitoringNamespace, "MONITORING_NAMESPACE")
	envInt(&c.DefaultTimeout, "DEFAULT_TIMEOUT")
	envInt(&c.RetryAttempts, "RETRY_ATTEMPTS")
	envInt(&c.RetryDelay, "RETRY_DELAY")
	envInt(&c.CheckInterval, "CHECK_INTERVAL")
	envInt(&c.GracePeriod, "GRACE_PERIOD")
	envString(&c.AppLabel, "APP_LABEL")
	envBool(&c.MonitoringEnabled, "MONITORING_ENABLED")
	envString(&c.MetricsAddr, "METRICS_ADDR")
	envString(&c.PrometheusURL, "PROMETHEUS_URL")
	envString(&c.GrafanaURL, "GRAFANA_URL")
	envString(&c.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	envString(&c.ExperimentsDir, "EXPERIMENTS_DIR")
	envString(&c.ManifestsDir, "MANIFESTS_DIR")
	envString(&c.Kubeconfig, "KUBECONFIG")
	envString(&c.ChaosServiceAccount, "CHAOS_SERVICE_ACCOUNT")
	envBool(&c.NotificationsEnabled, "NOTIFICATIONS_ENABLED")
	envString(&c.WebhookURL, "WEBHOOK_URL")
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func setInt(dst *int, val int) {
	if val != 0 {
		*dst = val
	}
}

func envString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
		log.Debugf("Overriding %v from environment", key)
	}
}

func envInt(dst *int, key string) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		log.Warnf("Ignoring non-numeric %v=%v", key, val)
		return
	}
	*dst = parsed
	log.Debugf("Overriding %v from environment", key)
}

func envBool(dst *bool, key string) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	switch val {
	case "true", "1", "yes", "on":
		*dst = true
	default:
		*dst = false
	}
	log.Debugf("Overriding %v from environment", key)
}
