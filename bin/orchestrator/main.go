package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	// Uncomment to load all auth plugins
	// _ "k8s.io/client-go/plugin/pkg/client/auth"

	"github.com/chaos-framework/chaos-orchestrator/pkg/clients"
	"github.com/chaos-framework/chaos-orchestrator/pkg/cluster"
	"github.com/chaos-framework/chaos-orchestrator/pkg/config"
	"github.com/chaos-framework/chaos-orchestrator/pkg/experiment"
	"github.com/chaos-framework/chaos-orchestrator/pkg/log"
	"github.com/chaos-framework/chaos-orchestrator/pkg/metrics"
	"github.com/chaos-framework/chaos-orchestrator/pkg/notify"
	"github.com/chaos-framework/chaos-orchestrator/pkg/recovery"
	"github.com/chaos-framework/chaos-orchestrator/pkg/report"
	"github.com/chaos-framework/chaos-orchestrator/pkg/scheduler"
	"github.com/chaos-framework/chaos-orchestrator/pkg/telemetry"
)

func init() {
	// Log as text with full timestamps, matching chaos-runner output.
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableSorting:         true,
		DisableLevelTruncation: true,
	})
}

type app struct {
	cfg        config.Config
	clientSets clients.ClientSets
	exec       *cluster.Executor
	controller *experiment.Controller
	scheduler  *scheduler.Scheduler
	aggregator *report.Aggregator
	recovery   *recovery.Engine
	collector  *metrics.Collector

	shutdown func(context.Context) error
}

func (a *app) setup(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.clientSets.GenerateClientSetFromKubeConfig(cfg.Kubeconfig); err != nil {
		return err
	}

	if cfg.OTLPEndpoint != "" {
		shutdown, err := telemetry.InitOTelSDK(context.Background(), cfg.OTLPEndpoint)
		if err != nil {
			return err
		}
		a.shutdown = shutdown
	}
	if cfg.MonitoringEnabled {
		a.collector = metrics.NewCollector()
		a.collector.Serve(cfg.MetricsAddr)
	}

	a.controller = experiment.NewController(cfg, a.clientSets, notify.New(cfg), a.collector)
	a.exec = a.controller.Executor()
	a.scheduler = scheduler.New(cfg, a.exec)
	a.aggregator = report.New(cfg, a.exec)
	a.recovery = recovery.NewEngine(cfg, a.clientSets, a.exec)
	return nil
}

func (a *app) close(ctx context.Context) {
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			log.Warnf("Telemetry shutdown failed: %v", err)
		}
	}
}

func main() {
	a := &app{}
	var configPath string

	root := &cobra.Command{
		Use:           "chaos-orchestrator",
		Short:         "Orchestrates chaos experiments against a Kubernetes cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the orchestrator config file")

	runCmd := &cobra.Command{
		Use:   "run <experiment>",
		Short: "Apply an experiment and monitor it until chaos injection starts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.controller.Apply(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := a.controller.Monitor(cmd.Context(), args[0])
			return err
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status <experiment>",
		Short: "Print the current state of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.controller.Monitor(cmd.Context(), args[0])
			return err
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop <experiment>",
		Short: "Stop a running experiment and remove its engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.controller.Stop(cmd.Context(), args[0])
		},
	}

	runningCmd := &cobra.Command{
		Use:   "running",
		Short: "List experiments currently injecting chaos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshots, err := a.controller.Running(cmd.Context(), a.cfg.AppNamespace)
			if err != nil {
				return err
			}
			if len(snapshots) == 0 {
				log.Info("No experiments are running")
				return nil
			}
			for _, snap := range snapshots {
				log.InfoWithValues("Running experiment", logrus.Fields{
					"Name":   snap.Name,
					"Engine": string(snap.Engine),
				})
			}
			return nil
		},
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Stop every experiment in the application namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stopped, skipped, err := a.controller.CleanupAll(cmd.Context(), a.cfg.AppNamespace)
			log.Infof("Cleanup finished, stopped: %v, skipped: %v", stopped, skipped)
			return err
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available experiment definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.controller.ListDefinitions()
			if err != nil {
				return err
			}
			for _, name := range names {
				log.Infof("  %v", name)
			}
			return nil
		},
	}

	var reportOut string
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a chaos report for the application namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep := a.aggregator.GenerateReport(cmd.Context(), a.cfg.AppNamespace)
			_, err := a.aggregator.Save(rep, reportOut)
			return err
		},
	}
	reportCmd.Flags().StringVar(&reportOut, "output", "", "report file path (default: timestamped)")

	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Apply the multi-step chaos workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.controller.RunWorkflow(cmd.Context())
		},
	}

	phaseCmd := &cobra.Command{
		Use:   "phase <phase2|phase3>",
		Short: "Run a predefined group of experiments in sequence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.controller.RunPhase(cmd.Context(), experiment.Phase(args[0]))
		},
	}

	var recoverNS string
	recoverCmd := &cobra.Command{
		Use:   "recover <pod-crash|memory-leak|network-issue|database-connection> <target>",
		Short: "Run the recovery strategy for a detected issue against a workload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.recovery.Execute(cmd.Context(), recovery.IssueKind(args[0]), recoverNS, args[1])
		},
	}
	recoverCmd.Flags().StringVar(&recoverNS, "namespace", "", "namespace of the target workload")

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage recurring experiments",
	}

	var cronExpr, scheduleFile, scheduleNS string
	scheduleCreateCmd := &cobra.Command{
		Use:   "create <experiment>",
		Short: "Schedule an experiment on a cron cadence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.scheduler.CreateSchedule(cmd.Context(), args[0], cronExpr, scheduleFile, scheduleNS)
		},
	}
	scheduleCreateCmd.Flags().StringVar(&cronExpr, "cron", "0 * * * *", "cron schedule expression")
	scheduleCreateCmd.Flags().StringVar(&scheduleFile, "file", "", "experiment definition file (default: experiments dir)")
	scheduleCreateCmd.Flags().StringVar(&scheduleNS, "namespace", "", "namespace for the schedule")

	scheduleListCmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled experiments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := a.scheduler.ListSchedules(cmd.Context(), scheduleNS)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				log.Info("No scheduled experiments found")
				return nil
			}
			for _, entry := range entries {
				fields := logrus.Fields{
					"Name":     entry.Name,
					"Schedule": entry.Schedule,
					"Active":   entry.Active,
				}
				if entry.LastRun != nil {
					fields["LastRun"] = entry.LastRun.Time
				}
				log.InfoWithValues("Scheduled experiment", fields)
			}
			return nil
		},
	}
	scheduleListCmd.Flags().StringVar(&scheduleNS, "namespace", "", "namespace to list schedules in")

	scheduleDeleteCmd := &cobra.Command{
		Use:   "delete <experiment>",
		Short: "Delete a scheduled experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.scheduler.DeleteSchedule(cmd.Context(), args[0], scheduleNS)
			return err
		},
	}
	scheduleDeleteCmd.Flags().StringVar(&scheduleNS, "namespace", "", "namespace of the schedule")

	scheduleCmd.AddCommand(scheduleCreateCmd, scheduleListCmd, scheduleDeleteCmd)
	root.AddCommand(runCmd, statusCmd, stopCmd, runningCmd, cleanupCmd, listCmd, reportCmd, workflowCmd, phaseCmd, recoverCmd, scheduleCmd)

	ctx := context.Background()
	err := root.ExecuteContext(ctx)
	a.close(ctx)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
