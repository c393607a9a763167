package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowmill/flowmill/pkg/config"
	"github.com/flowmill/flowmill/pkg/document"
	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/jobs"
	"github.com/flowmill/flowmill/pkg/kernel"
	"github.com/flowmill/flowmill/pkg/log"
	"github.com/flowmill/flowmill/pkg/model"
	"github.com/flowmill/flowmill/pkg/plugin"
	"github.com/flowmill/flowmill/pkg/rule"
	"github.com/flowmill/flowmill/pkg/scheduler"
	"github.com/flowmill/flowmill/pkg/storage"
	"github.com/flowmill/flowmill/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"

	configPath string
)

// TypeModel marks persisted BPMN model documents.
const TypeModel = "model"

const itemModelSource = "bpmn"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "flowmill",
	Short:   "Flowmill - embeddable BPMN workflow engine",
	Long:    `Flowmill processes workitems along BPMN task/event models: plugin chains, conditional and split gateways, access lists and calendar schedulers, backed by a local document store.`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the configuration file")

	rootCmd.AddCommand(modelCmd)
	rootCmd.AddCommand(schedulerCmd)
	rootCmd.AddCommand(processCmd)

	modelCmd.AddCommand(modelAddCmd)
	modelCmd.AddCommand(modelListCmd)

	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerStopCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)

	processCmd.Flags().String("id", "", "workitem id")
	processCmd.Flags().Int("event", 0, "event id to process")
	processCmd.Flags().String("caller", "", "caller identity")
	_ = processCmd.MarkFlagRequired("id")
	_ = processCmd.MarkFlagRequired("event")
}

// engine bundles the collaborators the commands operate on.
type engine struct {
	cfg    *config.Config
	store  *storage.BoltStore
	models *model.Manager
	broker *events.Broker
}

func newEngine() (*engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	models := model.NewManager()
	persisted, err := store.DocumentsByType(TypeModel)
	if err != nil {
		store.Close()
		return nil, err
	}
	for _, doc := range persisted {
		values := doc.GetItemValue(itemModelSource)
		if len(values) == 0 {
			continue
		}
		data, ok := values[0].([]byte)
		if !ok {
			continue
		}
		m, err := model.Parse(data)
		if err != nil {
			log.WithComponent("cli").Error().Err(err).Str("workitem_id", doc.UniqueID()).Msg("skipping broken model document")
			continue
		}
		if err := models.AddModel(m); err != nil {
			log.WithComponent("cli").Error().Err(err).Str("model_version", m.Version()).Msg("skipping model")
		}
	}

	return &engine{cfg: cfg, store: store, models: models, broker: events.NewBroker()}, nil
}

func (e *engine) Close() {
	if err := e.store.Close(); err != nil {
		log.WithComponent("cli").Error().Err(err).Msg("failed to close store")
	}
}

// Model commands
var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Manage BPMN models",
}

var modelAddCmd = &cobra.Command{
	Use:   "add <file.bpmn>",
	Short: "Parse a BPMN file and store it as a model document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		m, err := model.Parse(data)
		if err != nil {
			return err
		}

		doc := document.New()
		doc.SetType(TypeModel)
		if err := doc.SetItemValue("txtname", m.Version()); err != nil {
			return err
		}
		if err := doc.SetItemValue(itemModelSource, data); err != nil {
			return err
		}
		if _, err := e.store.Save(doc); err != nil {
			return err
		}

		fmt.Printf("Model %s stored (%d tasks)\n", m.Version(), len(m.Tasks()))
		return nil
	},
}

var modelListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored models",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		versions := e.models.Versions()
		if len(versions) == 0 {
			fmt.Println("No models stored")
			return nil
		}
		for _, version := range versions {
			m, err := e.models.Model(version)
			if err != nil {
				continue
			}
			fmt.Printf("%s\t%d tasks\n", version, len(m.Tasks()))
		}
		return nil
	},
}

// Scheduler commands
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage scheduler configurations",
}

func newSchedulerService(e *engine) *scheduler.Service {
	service := scheduler.NewService(e.store, e.broker, e.cfg.MaxSchedulers)
	_ = service.RegisterRunner(jobs.RunnerNameIndexRebuild, jobs.NewIndexRebuild(e.store, e.cfg.IndexBlockSize))
	return service
}

var schedulerStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Enable a scheduler configuration and arm its timer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		configDoc, err := e.store.Load(args[0])
		if err != nil {
			return err
		}
		service := newSchedulerService(e)
		configDoc, err = service.Start(configDoc)
		if err != nil {
			return err
		}

		next, _ := service.FindTimer(configDoc.UniqueID())
		fmt.Printf("Scheduler %s started, next run %s\n", configDoc.UniqueID(), next)
		return nil
	},
}

var schedulerStopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Disable a scheduler configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		configDoc, err := e.store.Load(args[0])
		if err != nil {
			return err
		}
		if _, err := newSchedulerService(e).Stop(configDoc); err != nil {
			return err
		}
		fmt.Printf("Scheduler %s stopped\n", args[0])
		return nil
	},
}

var schedulerStatusCmd = &cobra.Command{
	Use:   "status [id]",
	Short: "Show scheduler configurations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		configs, err := e.store.DocumentsByType(types.TypeScheduler)
		if err != nil {
			return err
		}
		for _, configDoc := range configs {
			if len(args) == 1 && configDoc.UniqueID() != args[0] {
				continue
			}
			status := "disabled"
			if configDoc.GetItemValueBoolean(scheduler.ItemEnabled) {
				status = "enabled"
			}
			fmt.Printf("%s\t%s\t%s\n", configDoc.UniqueID(),
				configDoc.GetItemValueString("txtname"), status)
			for _, line := range configDoc.GetItemValueStringList(scheduler.ItemLog) {
				fmt.Printf("    %s\n", line)
			}
		}
		return nil
	},
}

// Process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one processing step on a stored workitem",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		eventID, _ := cmd.Flags().GetInt("event")
		caller, _ := cmd.Flags().GetString("caller")

		e, err := newEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		workitem, err := e.store.Load(id)
		if err != nil {
			return err
		}
		workitem.Event(eventID)

		registry := plugin.NewRegistry()
		if err := registry.Register("substitution", plugin.NewSubstitutionPlugin()); err != nil {
			return err
		}
		if err := registry.Register("history", plugin.NewHistoryPlugin()); err != nil {
			return err
		}

		ctx := &plugin.WorkflowContext{Caller: caller, Models: e.models, Store: e.store}
		k := kernel.New(ctx, registry, rule.NewEngine(), e.broker)

		workitem, err = k.Process(workitem)
		if err != nil {
			return err
		}
		if workitem, err = e.store.Save(workitem); err != nil {
			return err
		}
		for _, sibling := range k.SplitWorkitems() {
			if _, err := e.store.Save(sibling); err != nil {
				return err
			}
		}

		fmt.Printf("Workitem %s -> task %d (%s)\n", workitem.UniqueID(),
			workitem.TaskID(), workitem.GetItemValueString(types.ItemWorkflowStatus))
		return nil
	},
}
