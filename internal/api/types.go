package api

// Workspace is a top-level tenant in Buddy.
type Workspace struct {
	ID     int    `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
	Name   string `json:"name,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// Project groups pipelines inside a workspace.
type Project struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Status      string `json:"status,omitempty"`
	HTMLURL     string `json:"html_url,omitempty"`
	CreateDate  string `json:"create_date,omitempty"`
}

// Pipeline is a configurable sequence of actions. The config fields beyond
// ID/Name cover what the YAML export round-trips.
type Pipeline struct {
	ID                      int             `json:"id,omitempty"`
	Name                    string          `json:"name,omitempty"`
	TriggerMode             string          `json:"trigger_mode,omitempty"`
	RefName                 string          `json:"ref_name,omitempty"`
	Events                  []PipelineEvent `json:"events,omitempty"`
	Priority                string          `json:"priority,omitempty"`
	FetchAllRefs            bool            `json:"fetch_all_refs,omitempty"`
	AlwaysFromScratch       bool            `json:"always_from_scratch,omitempty"`
	AutoClearCache          bool            `json:"auto_clear_cache,omitempty"`
	NoSkipToMostRecent      bool            `json:"no_skip_to_most_recent,omitempty"`
	TerminateStaleRuns      bool            `json:"terminate_stale_runs,omitempty"`
	ConcurrentPipelineRuns  bool            `json:"concurrent_pipeline_runs,omitempty"`
	FailOnPrepareEnvWarning bool            `json:"fail_on_prepare_env_warning,omitempty"`
	Variables               []Variable      `json:"variables,omitempty"`
	LastExecutionStatus     string          `json:"last_execution_status,omitempty"`
	HTMLURL                 string          `json:"html_url,omitempty"`
}

// PipelineEvent triggers a pipeline on matching git refs.
type PipelineEvent struct {
	Type string   `json:"type,omitempty"`
	Refs []string `json:"refs,omitempty"`
}

// Branch names the git ref an execution ran against.
type Branch struct {
	Name string `json:"name,omitempty"`
}

// Revision identifies the commit an execution ran.
type Revision struct {
	Revision string `json:"revision,omitempty"`
}

// Action is one step of a pipeline. Only the common fields are typed;
// type-specific settings ride along in create/update payloads untouched.
type Action struct {
	ID               int      `json:"id,omitempty"`
	Name             string   `json:"name,omitempty"`
	Type             string   `json:"type,omitempty"`
	TriggerTime      string   `json:"trigger_time,omitempty"`
	DockerImageName  string   `json:"docker_image_name,omitempty"`
	DockerImageTag   string   `json:"docker_image_tag,omitempty"`
	Shell            string   `json:"shell,omitempty"`
	WorkingDirectory string   `json:"working_directory,omitempty"`
	ExecuteCommands  []string `json:"execute_commands,omitempty"`
	SetupCommands    []string `json:"setup_commands,omitempty"`
}

// ActionExecution is the result of one action within an execution. Log is
// only populated on the per-action detail endpoint.
type ActionExecution struct {
	Status     string   `json:"status,omitempty"`
	StartDate  string   `json:"start_date,omitempty"`
	FinishDate string   `json:"finish_date,omitempty"`
	Action     Action   `json:"action,omitempty"`
	Log        []string `json:"log,omitempty"`
}

// Execution is one run of a pipeline.
type Execution struct {
	ID               int               `json:"id,omitempty"`
	Status           string            `json:"status,omitempty"`
	Comment          string            `json:"comment,omitempty"`
	Branch           Branch            `json:"branch,omitempty"`
	ToRevision       Revision          `json:"to_revision,omitempty"`
	StartDate        string            `json:"start_date,omitempty"`
	FinishDate       string            `json:"finish_date,omitempty"`
	ActionExecutions []ActionExecution `json:"action_executions,omitempty"`
	HTMLURL          string            `json:"html_url,omitempty"`
}

// RunRequest is the payload for triggering an execution.
type RunRequest struct {
	Comment    string    `json:"comment,omitempty"`
	ToRevision *Revision `json:"to_revision,omitempty"`
}

// Variable is a workspace-scoped environment variable.
type Variable struct {
	ID          int    `json:"id,omitempty"`
	Key         string `json:"key,omitempty"`
	Value       string `json:"value,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Settable    bool   `json:"settable,omitempty"`
	Encrypted   bool   `json:"encrypted,omitempty"`
}

// Webhook delivers workspace events to an external URL.
type Webhook struct {
	ID        int      `json:"id,omitempty"`
	TargetURL string   `json:"target_url,omitempty"`
	SecretKey string   `json:"secret_key,omitempty"`
	Events    []string `json:"events,omitempty"`
}
