package agents

// AgentStatus is the operational state of an agent.
type AgentStatus string

const (
	// StatusActive means the agent is running and handling incidents.
	StatusActive AgentStatus = "active"

	// StatusInactive means the agent is deployed but not running.
	StatusInactive AgentStatus = "inactive"

	// StatusPaused means the agent was paused by an operator.
	StatusPaused AgentStatus = "paused"

	// StatusDeploying means the agent is still initializing.
	StatusDeploying AgentStatus = "deploying"

	// StatusError means the agent is in a failed state.
	StatusError AgentStatus = "error"
)

// AgentAction is one entry of an agent's recent action history.
type AgentAction struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Time        string `json:"time"`
}

// AgentMetrics is the resource usage reported for an agent, in percent.
type AgentMetrics struct {
	CPU     int `json:"cpu"`
	Memory  int `json:"memory"`
	Network int `json:"network"`
}

// AgentConfig is the per-agent configuration set at deploy time.
type AgentConfig struct {
	AlertThreshold     int      `json:"alertThreshold"`
	RetryAttempts      int      `json:"retryAttempts"`
	AutoStart          bool     `json:"autoStart"`
	Capabilities       []string `json:"capabilities"`
	Priority           string   `json:"priority"`
	Tags               []string `json:"tags"`
	MonitoringInterval int      `json:"monitoringInterval"`
}

// Agent is an infrastructure agent as returned by the agents API.
type Agent struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Type        string       `json:"type"`
	Status      AgentStatus  `json:"status"`
	Description string       `json:"description"`
	Layer       string       `json:"layer"`
	Confidence  int          `json:"confidence"`
	Incidents   int          `json:"incidents"`
	LastAction  string       `json:"lastAction"`
	Actions     []AgentAction `json:"actions,omitempty"`
	Metrics     AgentMetrics `json:"metrics"`
	Config      *AgentConfig `json:"config,omitempty"`
	CreatedAt   string       `json:"created_at,omitempty"`
	UpdatedAt   string       `json:"updated_at,omitempty"`
}

// DeployParams is the payload for deploying a new agent.
type DeployParams struct {
	Name               string   `json:"name"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	Layer              string   `json:"layer"`
	AutoStart          bool     `json:"autoStart"`
	AlertThreshold     int      `json:"alertThreshold"`
	RetryAttempts      int      `json:"retryAttempts"`
	MonitoringInterval int      `json:"monitoringInterval"`
	Capabilities       []string `json:"capabilities"`
	Priority           string   `json:"priority"`
	Tags               []string `json:"tags"`
}

// DeployResult is the API response for a successful deployment.
type DeployResult struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message"`
	Agent              Agent    `json:"agent"`
	EstimatedReadyTime string   `json:"estimatedReadyTime"`
	NextSteps          []string `json:"nextSteps"`
}

// StatusUpdate is the payload for changing an agent's status.
type StatusUpdate struct {
	Status AgentStatus `json:"status"`
}

// StatusUpdateResult is the API response for a status change.
type StatusUpdateResult struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	AgentID   string      `json:"agentId"`
	NewStatus AgentStatus `json:"newStatus"`
	UpdatedAt string      `json:"updatedAt"`
}

// DeleteResult is the API response for a deletion.
type DeleteResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	AgentID   string `json:"agentId"`
	DeletedAt string `json:"deletedAt"`
}
