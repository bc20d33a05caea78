package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/buddy-works/buddy-cli/internal/api"
)

// pipelineConfig is the YAML schema shared by pipelines:get and
// pipelines:create: an export is a valid create input, so pipelines can be
// cloned across projects or kept under version control.
type pipelineConfig struct {
	Name                    string           `yaml:"name,omitempty"`
	TriggerMode             string           `yaml:"trigger_mode,omitempty"`
	RefName                 string           `yaml:"ref_name,omitempty"`
	Events                  []eventConfig    `yaml:"events,omitempty"`
	Priority                string           `yaml:"priority,omitempty"`
	FetchAllRefs            bool             `yaml:"fetch_all_refs,omitempty"`
	AlwaysFromScratch       bool             `yaml:"always_from_scratch,omitempty"`
	AutoClearCache          bool             `yaml:"auto_clear_cache,omitempty"`
	NoSkipToMostRecent      bool             `yaml:"no_skip_to_most_recent,omitempty"`
	TerminateStaleRuns      bool             `yaml:"terminate_stale_runs,omitempty"`
	ConcurrentPipelineRuns  bool             `yaml:"concurrent_pipeline_runs,omitempty"`
	FailOnPrepareEnvWarning bool             `yaml:"fail_on_prepare_env_warning,omitempty"`
	Variables               []variableConfig `yaml:"variables,omitempty"`
	Actions                 []actionConfig   `yaml:"actions,omitempty"`
}

type eventConfig struct {
	Type string   `yaml:"type,omitempty" json:"type,omitempty"`
	Refs []string `yaml:"refs,omitempty" json:"refs,omitempty"`
}

type variableConfig struct {
	Key         string `yaml:"key" json:"key"`
	Value       string `yaml:"value" json:"value"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Settable    bool   `yaml:"settable,omitempty" json:"settable,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type actionConfig struct {
	Name             string   `yaml:"name,omitempty"`
	Type             string   `yaml:"type,omitempty"`
	TriggerTime      string   `yaml:"trigger_time,omitempty"`
	DockerImageName  string   `yaml:"docker_image_name,omitempty"`
	DockerImageTag   string   `yaml:"docker_image_tag,omitempty"`
	SetupCommands    []string `yaml:"setup_commands,omitempty"`
	ExecuteCommands  []string `yaml:"execute_commands,omitempty"`
	Shell            string   `yaml:"shell,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty"`
}

// exportPipelineConfig flattens a pipeline and its actions into the YAML
// schema.
func exportPipelineConfig(p *api.Pipeline, actions []api.Action) pipelineConfig {
	cfg := pipelineConfig{
		Name:                    p.Name,
		TriggerMode:             p.TriggerMode,
		RefName:                 p.RefName,
		Priority:                p.Priority,
		FetchAllRefs:            p.FetchAllRefs,
		AlwaysFromScratch:       p.AlwaysFromScratch,
		AutoClearCache:          p.AutoClearCache,
		NoSkipToMostRecent:      p.NoSkipToMostRecent,
		TerminateStaleRuns:      p.TerminateStaleRuns,
		ConcurrentPipelineRuns:  p.ConcurrentPipelineRuns,
		FailOnPrepareEnvWarning: p.FailOnPrepareEnvWarning,
	}
	for _, e := range p.Events {
		cfg.Events = append(cfg.Events, eventConfig{Type: e.Type, Refs: e.Refs})
	}
	for _, v := range p.Variables {
		vc := variableConfig{
			Key:         v.Key,
			Value:       v.Value,
			Type:        v.Type,
			Settable:    v.Settable,
			Description: v.Description,
		}
		if vc.Type == "" {
			vc.Type = "VAR"
		}
		cfg.Variables = append(cfg.Variables, vc)
	}
	for _, a := range actions {
		ac := actionConfig{
			Name:             a.Name,
			Type:             a.Type,
			TriggerTime:      a.TriggerTime,
			DockerImageName:  a.DockerImageName,
			DockerImageTag:   a.DockerImageTag,
			SetupCommands:    a.SetupCommands,
			ExecuteCommands:  a.ExecuteCommands,
			Shell:            a.Shell,
			WorkingDirectory: a.WorkingDirectory,
		}
		if ac.TriggerTime == "" {
			ac.TriggerTime = "ON_EVERY_EXECUTION"
		}
		if ac.DockerImageName != "" && ac.DockerImageTag == "" {
			ac.DockerImageTag = "latest"
		}
		cfg.Actions = append(cfg.Actions, ac)
	}
	return cfg
}

// payload builds the create/update request body from the fields that were
// actually set, so server defaults apply to the rest. Actions are created
// separately and never ride along.
func (c pipelineConfig) payload() map[string]any {
	p := map[string]any{}
	if c.Name != "" {
		p["name"] = c.Name
	}
	if c.TriggerMode != "" {
		p["trigger_mode"] = c.TriggerMode
	}
	if c.RefName != "" {
		p["ref_name"] = c.RefName
	}
	if len(c.Events) > 0 {
		p["events"] = c.Events
	}
	if c.Priority != "" {
		p["priority"] = c.Priority
	}
	for key, set := range map[string]bool{
		"fetch_all_refs":              c.FetchAllRefs,
		"always_from_scratch":         c.AlwaysFromScratch,
		"auto_clear_cache":            c.AutoClearCache,
		"no_skip_to_most_recent":      c.NoSkipToMostRecent,
		"terminate_stale_runs":        c.TerminateStaleRuns,
		"concurrent_pipeline_runs":    c.ConcurrentPipelineRuns,
		"fail_on_prepare_env_warning": c.FailOnPrepareEnvWarning,
	} {
		if set {
			p[key] = true
		}
	}
	if len(c.Variables) > 0 {
		p["variables"] = c.Variables
	}
	return p
}

func (a actionConfig) payload() map[string]any {
	p := map[string]any{
		"name": a.Name,
		"type": a.Type,
	}
	if a.TriggerTime != "" {
		p["trigger_time"] = a.TriggerTime
	}
	if a.DockerImageName != "" {
		p["docker_image_name"] = a.DockerImageName
		tag := a.DockerImageTag
		if tag == "" {
			tag = "latest"
		}
		p["docker_image_tag"] = tag
	}
	if len(a.SetupCommands) > 0 {
		p["setup_commands"] = a.SetupCommands
	}
	if len(a.ExecuteCommands) > 0 {
		p["execute_commands"] = a.ExecuteCommands
	}
	if a.Shell != "" {
		p["shell"] = a.Shell
	}
	if a.WorkingDirectory != "" {
		p["working_directory"] = a.WorkingDirectory
	}
	return p
}

func readPipelineConfig(path string) (pipelineConfig, error) {
	var cfg pipelineConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid pipeline YAML in %s: %w", path, err)
	}
	return cfg, nil
}

func newPipelinesGetCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines:get <id>",
		Short: "Export a pipeline and its actions as YAML",
		Long: `Export a pipeline and its actions as a YAML configuration file.

The output is accepted by pipelines:create, so an export can be used to
clone a pipeline to another project, version control its configuration,
or serve as a template.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			project, err := requireProject(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "pipeline")
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			pipeline, err := session.Pipeline(cmd.Context(), workspace, project, id)
			if err != nil {
				return err
			}
			actions, err := session.PipelineActions(cmd.Context(), workspace, project, id)
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(exportPipelineConfig(pipeline, actions))
			if err != nil {
				return fmt.Errorf("cannot encode pipeline config: %w", err)
			}

			outputPath, _ := cmd.Flags().GetString("output")
			if outputPath == "" {
				outputPath = fmt.Sprintf("pipeline-%d.yaml", id)
			}
			if err := os.WriteFile(outputPath, data, 0o644); err != nil {
				return fmt.Errorf("cannot write %s: %w", outputPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved pipeline config to %s\n", outputPath)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file path (default pipeline-<id>.yaml)")
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	return cmd
}

func newPipelinesCreateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines:create <file>",
		Short: "Create a pipeline from a YAML file",
		Long: `Create a pipeline from a YAML configuration file.

The name field is required; any actions listed are created on the new
pipeline afterwards, in order. Fields left out of the file keep their
server-side defaults.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			project, err := requireProject(cmd, app)
			if err != nil {
				return err
			}
			cfg, err := readPipelineConfig(args[0])
			if err != nil {
				return err
			}
			if cfg.Name == "" {
				return errors.New("pipeline name is required in the YAML configuration")
			}
			session, err := app.Session()
			if err != nil {
				return err
			}

			pipeline, err := session.CreatePipeline(cmd.Context(), workspace, project, cfg.payload())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created pipeline: %s (ID: %d)\n", pipeline.Name, pipeline.ID)

			for _, a := range cfg.Actions {
				action, err := session.CreateAction(cmd.Context(), workspace, project, pipeline.ID, a.payload())
				if err != nil {
					return fmt.Errorf("pipeline #%d created but action %q failed: %w", pipeline.ID, a.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  - Created action: %s\n", action.Name)
			}
			return nil
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	return cmd
}

func newPipelinesUpdateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipelines:update <id> <file>",
		Short: "Update a pipeline from a YAML file",
		Long: `Update an existing pipeline from a YAML configuration file. Only the
fields present in the file are changed.

Actions are not touched; use actions:update to modify them.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace, err := requireWorkspace(cmd, app)
			if err != nil {
				return err
			}
			project, err := requireProject(cmd, app)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "pipeline")
			if err != nil {
				return err
			}
			cfg, err := readPipelineConfig(args[1])
			if err != nil {
				return err
			}
			session, err := app.Session()
			if err != nil {
				return err
			}
			pipeline, err := session.UpdatePipeline(cmd.Context(), workspace, project, id, cfg.payload())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated pipeline: %s (ID: %d)\n", pipeline.Name, pipeline.ID)
			return nil
		},
	}
	addWorkspaceFlag(cmd)
	addProjectFlag(cmd)
	return cmd
}
