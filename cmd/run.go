package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/intel-engine/internal/aggregate"
	"github.com/sells-group/intel-engine/internal/model"
	"github.com/sells-group/intel-engine/internal/orchestrator"
	"github.com/sells-group/intel-engine/internal/runlog"
	"github.com/sells-group/intel-engine/internal/scanner"
)

var runAggregate bool

// workflowFile is the YAML shape of a workflow definition.
type workflowFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Priority    string     `yaml:"priority"`
	Tasks       []taskFile `yaml:"tasks"`
}

type taskFile struct {
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	Capability     string         `yaml:"capability"`
	Target         string         `yaml:"target"`
	Options        map[string]any `yaml:"options"`
	Priority       string         `yaml:"priority"`
	DependsOn      []string       `yaml:"depends_on"`
	MaxRetries     *int           `yaml:"max_retries"`
	TimeoutSeconds *int           `yaml:"timeout_seconds"`
}

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Submit a workflow and wait for its terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wf, err := loadWorkflowFile(args[0])
		if err != nil {
			return err
		}

		registry := scanner.NewRegistry()
		scanner.RegisterBuiltins(registry)

		engine := orchestrator.NewEngine(cfg.Orchestrator, registry)

		if cfg.Runlog.Enabled {
			store, err := runlog.NewSQLite(cfg.Runlog.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}
			engine.WithRecorder(store)
			engine.Subscribe(store)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := engine.Run(ctx); err != nil {
				zap.L().Error("engine run", zap.Error(err))
			}
		}()

		id, err := engine.SubmitWorkflow(wf)
		if err != nil {
			return err
		}

		final := waitForWorkflow(ctx, engine, id)
		cancel()
		<-done

		if final == nil {
			return eris.Errorf("workflow %s disappeared before completion", id)
		}
		engine.ReapCompleted(id)

		if runAggregate {
			report, err := aggregateResults(cmd.Context(), final)
			if err != nil {
				return err
			}
			return printJSON(report)
		}

		return printJSON(final)
	},
}

func init() {
	runCmd.Flags().BoolVar(&runAggregate, "aggregate", false, "aggregate completed task results into an entity report")
	rootCmd.AddCommand(runCmd)
}

func loadWorkflowFile(path string) (*model.IntelligenceWorkflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read workflow %s", path)
	}

	var wfFile workflowFile
	if err := yaml.Unmarshal(data, &wfFile); err != nil {
		return nil, eris.Wrap(err, "parse workflow yaml")
	}

	wf := model.NewWorkflow(wfFile.Name, wfFile.Description)
	prio, err := model.ParsePriority(wfFile.Priority)
	if err != nil {
		return nil, err
	}
	wf.Priority = prio

	// YAML task ids are file-local aliases; map them to generated task IDs
	// so dependencies resolve.
	idMap := make(map[string]string, len(wfFile.Tasks))
	for _, tf := range wfFile.Tasks {
		t := model.NewTask(tf.Name, tf.Capability, tf.Target)
		t.Options = tf.Options
		t.Priority = wf.Priority
		if tf.Priority != "" {
			p, err := model.ParsePriority(tf.Priority)
			if err != nil {
				return nil, err
			}
			t.Priority = p
		}
		if tf.MaxRetries != nil {
			t.MaxRetries = *tf.MaxRetries
		}
		if tf.TimeoutSeconds != nil {
			t.TimeoutSeconds = *tf.TimeoutSeconds
		}
		if tf.ID != "" {
			idMap[tf.ID] = t.ID
		}
		wf.AddTask(t)
	}
	for i, tf := range wfFile.Tasks {
		for _, dep := range tf.DependsOn {
			real, ok := idMap[dep]
			if !ok {
				return nil, eris.Errorf("task %q depends on unknown alias %q", tf.Name, dep)
			}
			wf.Tasks[i].Dependencies = append(wf.Tasks[i].Dependencies, real)
		}
	}

	return wf, nil
}

func waitForWorkflow(ctx context.Context, engine *orchestrator.Engine, id string) *model.IntelligenceWorkflow {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return engine.GetWorkflowStatus(id)
		case <-ticker.C:
			wf := engine.GetWorkflowStatus(id)
			if wf == nil {
				return nil
			}
			if wf.Status.Terminal() {
				return wf
			}
		}
	}
}

// aggregateResults feeds completed task payloads into the aggregation
// pipeline, attributing each to its capability.
func aggregateResults(ctx context.Context, wf *model.IntelligenceWorkflow) (*model.AggregationReport, error) {
	var records []model.ScanResultRecord
	for _, t := range wf.Tasks {
		if t.Status != model.TaskStatusCompleted {
			continue
		}
		payload, ok := t.Result.(map[string]any)
		if !ok {
			continue
		}
		var ts string
		if t.CompletedAt != nil {
			ts = t.CompletedAt.UTC().Format(time.RFC3339)
		}
		records = append(records, model.ScanResultRecord{
			Scanner:    t.Capability,
			Confidence: 0.85,
			Timestamp:  ts,
			Result:     payload,
		})
	}

	agg := aggregate.NewAggregator(cfg.Aggregate)
	return agg.Aggregate(ctx, records)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	fmt.Println(string(out))
	return nil
}
