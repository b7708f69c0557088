package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	v1 "github.com/foremanhq/foreman/pkg/api/v1"
)

// NewRootCmd builds the foremanctl command tree.
func NewRootCmd(version string) *cobra.Command {
	var apiURL string

	root := &cobra.Command{
		Use:     "foremanctl",
		Short:   "Control client for the foreman task orchestrator",
		Version: version,
		// errors are rendered by main with the proper exit code
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&apiURL, "api", defaultAPI(), "daemon base URL")

	client := func() *Client { return NewClient(apiURL) }

	root.AddCommand(
		statusCmd(client),
		healthCmd(client),
		agentsCmd(client),
		agentCmd(client),
		tasksCmd(client),
		taskCmd(client),
		newCmd(client),
		dispatchCmd(client),
		runCmd(client),
		pollCmd(client),
		retryCmd(client),
		cancelCmd(client),
		watchCmd(client),
		logsCmd(client),
		routingCmd(client),
	)
	return root
}

func defaultAPI() string {
	if url := os.Getenv("FOREMAN_API"); url != "" {
		return url
	}
	return DefaultBaseURL
}

type statusResponse struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	Tasks         map[string]int `json:"tasks"`
	Agents        struct {
		Total    int            `json:"total"`
		ByStatus map[string]int `json:"by_status"`
	} `json:"agents"`
}

func statusCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var s statusResponse
			if err := client().Get("/status", &s); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Foreman v%s | %s | uptime %ds\n",
				s.Version, strings.ToUpper(s.Status), int(s.UptimeSeconds))
			fmt.Fprintf(out, "Tasks:  %s\n", countMap(s.Tasks))
			fmt.Fprintf(out, "Agents: %d total | %s\n", s.Agents.Total, countMap(s.Agents.ByStatus))
			return nil
		},
	}
}

type healthResponse struct {
	Builder       string   `json:"builder"`
	Version       string   `json:"version"`
	Ollama        string   `json:"ollama"`
	OllamaModels  []string `json:"ollama_models"`
	AgentsTotal   int      `json:"agents_total"`
	AgentsActive  int      `json:"agents_active"`
	TasksPending  int      `json:"tasks_pending"`
	TasksRunning  int      `json:"tasks_running"`
	UptimeSeconds float64  `json:"uptime_seconds"`
}

func healthCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show component health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var h healthResponse
			if err := client().Get("/health", &h); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:  %s\n", h.Builder)
			fmt.Fprintf(out, "Version: %s\n", h.Version)
			fmt.Fprintf(out, "Ollama:  %s (%d models)\n", h.Ollama, len(h.OllamaModels))
			fmt.Fprintf(out, "Agents:  %d total, %d active\n", h.AgentsTotal, h.AgentsActive)
			fmt.Fprintf(out, "Tasks:   %d pending, %d running\n", h.TasksPending, h.TasksRunning)
			if len(h.OllamaModels) > 0 {
				fmt.Fprintf(out, "Models:  %s\n", strings.Join(h.OllamaModels, ", "))
			}
			return nil
		},
	}
}

func agentsCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Agents []v1.Agent `json:"agents"`
			}
			if err := client().Get("/agents", &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-22s %-10s %-10s CAPABILITIES\n", "AGENT", "BRIDGE", "STATUS")
			fmt.Fprintln(out, strings.Repeat("-", 70))
			for _, a := range resp.Agents {
				fmt.Fprintf(out, "%-22s %-10s %-10s %s\n",
					a.Name, a.BridgeType, a.Status, strings.Join(a.Capabilities, ", "))
			}
			return nil
		},
	}
}

func agentCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "agent <name>",
		Short: "Show one agent in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a v1.Agent
			if err := client().Get("/agents/"+args[0], &a); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:         %s\n", a.Name)
			fmt.Fprintf(out, "Role:         %s\n", a.Role)
			fmt.Fprintf(out, "Bridge:       %s\n", a.BridgeType)
			fmt.Fprintf(out, "Status:       %s\n", a.Status)
			fmt.Fprintf(out, "Capabilities: %s\n", strings.Join(a.Capabilities, ", "))
			fmt.Fprintf(out, "Last seen:    %s\n", timeOrDash(a.LastSeen))
			fmt.Fprintf(out, "Current task: %s\n", strOrDash(a.CurrentTask))
			return nil
		},
	}
}

func tasksCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks [status]",
		Short: "List tasks, optionally filtered by status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/tasks"
			if len(args) == 1 {
				path += "?status=" + args[0]
			}
			var tasks []v1.Task
			if err := client().Get(path, &tasks); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintln(out, "No tasks.")
				return nil
			}
			fmt.Fprintf(out, "%-14s %-10s %-10s %-18s TITLE\n", "ID", "STATUS", "PRIORITY", "AGENT")
			fmt.Fprintln(out, strings.Repeat("-", 80))
			for _, t := range tasks {
				fmt.Fprintf(out, "%-14s %-10s %-10s %-18s %s\n",
					t.ID, t.Status, t.Priority, strOrDash(t.AssignedTo), clip(t.Title, 30))
			}
			return nil
		},
	}
}

func taskCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "task <id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t v1.Task
			if err := client().Get("/tasks/"+args[0], &t); err != nil {
				return err
			}
			printTask(cmd.OutOrStdout(), &t)
			return nil
		},
	}
}

func newCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "new <title> <description> [priority]",
		Short: "Create a task",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := createTask(client(), cmd.OutOrStdout(), args)
			return err
		},
	}
}

func createTask(c *Client, out io.Writer, args []string) (*v1.Task, error) {
	priority := "medium"
	if len(args) == 3 {
		priority = args[2]
	}
	var t v1.Task
	err := c.Post("/tasks", map[string]string{
		"title":       args[0],
		"description": args[1],
		"priority":    priority,
	}, &t)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Task created: %s\n", t.ID)
	fmt.Fprintf(out, "  Title:    %s\n", t.Title)
	fmt.Fprintf(out, "  Priority: %s\n", t.Priority)
	fmt.Fprintf(out, "  Status:   %s\n", t.Status)
	return &t, nil
}

type dispatchResponse struct {
	TaskID  string             `json:"task_id"`
	Routing v1.RoutingDecision `json:"routing"`
	Task    v1.Task            `json:"task"`
}

func dispatchCmd(client func() *Client) *cobra.Command {
	var agent, bridge, model string
	cmd := &cobra.Command{
		Use:   "dispatch <id>",
		Short: "Classify, route and execute a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return dispatchTask(client(), cmd.OutOrStdout(), args[0], agent, bridge, model)
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "force a specific agent")
	cmd.Flags().StringVar(&bridge, "bridge", "", "force a specific bridge")
	cmd.Flags().StringVar(&model, "model", "", "force a specific model")
	return cmd
}

func dispatchTask(c *Client, out io.Writer, taskID, agent, bridge, model string) error {
	fmt.Fprintf(out, "Dispatching %s...\n", taskID)

	var body map[string]string
	if agent != "" || bridge != "" || model != "" {
		body = map[string]string{}
		if agent != "" {
			body["agent"] = agent
		}
		if bridge != "" {
			body["bridge"] = bridge
		}
		if model != "" {
			body["model"] = model
		}
	}

	var resp dispatchResponse
	if err := c.Post("/tasks/"+taskID+"/dispatch", body, &resp); err != nil {
		return err
	}
	fmt.Fprintf(out, "  Type:   %s\n", resp.Routing.TaskType)
	fmt.Fprintf(out, "  Agent:  %s\n", resp.Routing.Agent)
	fmt.Fprintf(out, "  Bridge: %s\n", resp.Routing.Bridge)
	fmt.Fprintf(out, "  Status: %s\n", resp.Task.Status)
	if resp.Task.Result != nil {
		fmt.Fprintf(out, "\n--- RESULT ---\n%s\n", *resp.Task.Result)
	} else if resp.Routing.Bridge != "ollama" {
		fmt.Fprintln(out, "  (async: result will arrive via the inbox)")
	}
	return nil
}

func runCmd(client func() *Client) *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "run <title> <description> [priority]",
		Short: "Create and dispatch a task in one step",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			out := cmd.OutOrStdout()
			t, err := createTask(c, out, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			return dispatchTask(c, out, t.ID, agent, "", "")
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "force a specific agent")
	return cmd
}

func pollCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "poll <id>",
		Short: "Check an async task for a pending result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Status  string  `json:"status"`
				Message string  `json:"message"`
				Result  *string `json:"result"`
			}
			if err := client().Post("/tasks/"+args[0]+"/poll", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status: %s\n", resp.Status)
			if resp.Message != "" {
				fmt.Fprintln(out, resp.Message)
			}
			if resp.Result != nil {
				fmt.Fprintf(out, "\n--- RESULT ---\n%s\n", *resp.Result)
			}
			return nil
		},
	}
}

func retryCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reset a failed task to pending and re-dispatch it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dispatchResponse
			if err := client().Post("/tasks/"+args[0]+"/retry", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Retried %s\n", args[0])
			fmt.Fprintf(out, "  Agent:  %s\n", resp.Routing.Agent)
			fmt.Fprintf(out, "  Status: %s\n", resp.Task.Status)
			if resp.Task.Result != nil {
				fmt.Fprintf(out, "\n--- RESULT ---\n%s\n", *resp.Task.Result)
			}
			return nil
		},
	}
}

func cancelCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a non-terminal task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Cancelled bool    `json:"cancelled"`
				Task      v1.Task `json:"task"`
			}
			if err := client().Post("/tasks/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s (status: %s)\n", args[0], resp.Task.Status)
			return nil
		},
	}
}

func watchCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [interval]",
		Short: "Poll daemon status in a loop",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			interval := 5
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid interval: %s", args[0])
				}
				interval = n
			}
			return watchLoop(client(), cmd.OutOrStdout(), time.Duration(interval)*time.Second, -1)
		},
	}
}

// watchLoop prints one status line per tick. A negative iteration count runs
// until the first transport error.
func watchLoop(c *Client, out io.Writer, interval time.Duration, iterations int) error {
	for i := 0; iterations < 0 || i < iterations; i++ {
		if i > 0 {
			time.Sleep(interval)
		}
		var s statusResponse
		if err := c.Get("/status", &s); err != nil {
			return err
		}
		fmt.Fprintf(out, "[%s] tasks %s | agents %s\n",
			time.Now().Format("15:04:05"), countMap(s.Tasks), countMap(s.Agents.ByStatus))
	}
	return nil
}

func logsCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "logs [limit]",
		Short: "Show recent audit log lines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit := 30
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n < 1 {
					return fmt.Errorf("invalid limit: %s", args[0])
				}
				limit = n
			}
			var resp struct {
				Logs []string `json:"logs"`
			}
			if err := client().Get(fmt.Sprintf("/logs?limit=%d", limit), &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range resp.Logs {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func routingCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "routing",
		Short: "Show the static routing table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				RoutingTable map[string]v1.RoutingRule `json:"routing_table"`
			}
			if err := client().Get("/routing", &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s %-22s %-10s MODEL\n", "TYPE", "AGENT", "BRIDGE")
			fmt.Fprintln(out, strings.Repeat("-", 70))
			types := make([]string, 0, len(resp.RoutingTable))
			for name := range resp.RoutingTable {
				types = append(types, name)
			}
			sort.Strings(types)
			for _, name := range types {
				r := resp.RoutingTable[name]
				model := r.Model
				if model == "" {
					model = "-"
				}
				fmt.Fprintf(out, "%-16s %-22s %-10s %s\n", name, r.Agent, r.Bridge, model)
			}
			return nil
		},
	}
}

func printTask(out io.Writer, t *v1.Task) {
	fmt.Fprintf(out, "ID:          %s\n", t.ID)
	fmt.Fprintf(out, "Title:       %s\n", t.Title)
	fmt.Fprintf(out, "Status:      %s\n", t.Status)
	fmt.Fprintf(out, "Priority:    %s\n", t.Priority)
	fmt.Fprintf(out, "Agent:       %s\n", strOrDash(t.AssignedTo))
	fmt.Fprintf(out, "Type:        %s\n", strOrDash(t.TaskType))
	fmt.Fprintf(out, "Created:     %s\n", t.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Updated:     %s\n", t.UpdatedAt.Format(time.RFC3339))
	if t.Description != "" {
		fmt.Fprintf(out, "Description: %s\n", t.Description)
	}
	if t.Result != nil {
		fmt.Fprintf(out, "\n--- RESULT ---\n%s\n", *t.Result)
	}
	if t.Error != nil {
		fmt.Fprintf(out, "\n--- ERROR ---\n%s\n", *t.Error)
	}
}

func countMap(m map[string]int) string {
	if len(m) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, m[k]))
	}
	return strings.Join(parts, " ")
}

func strOrDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
