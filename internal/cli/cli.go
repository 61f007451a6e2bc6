package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	internal_http "github.com/avenca/flowline/internal/http"
	"github.com/avenca/flowline/internal/log"
	internal_storage "github.com/avenca/flowline/internal/storage"
	"github.com/avenca/flowline/pkg/engine"
	"github.com/avenca/flowline/pkg/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	createCmd := &cobra.Command{
		Use:   "create [definition.json]",
		Short: "Create or update a workflow from a JSON definition file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			createWorkflow(store, args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all workflows",
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			listWorkflows(store)
		},
	}

	enableCmd := &cobra.Command{
		Use:   "enable [workflow-id]",
		Short: "Enable or disable a workflow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			enabled, err := cmd.Flags().GetBool("enabled")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving enabled flag: %v", err)
				os.Exit(1)
			}
			store := initStore(cmd)
			defer store.Close()
			if err := store.SetWorkflowEnabled(args[0], enabled); err != nil {
				log.GetLogger().Errorf("Failed to update workflow %s: %v", args[0], err)
				fmt.Fprintf(os.Stderr, "Error: failed to update workflow: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Workflow %s enabled=%v\n", args[0], enabled)
		},
	}
	enableCmd.Flags().Bool("enabled", true, "Desired enabled state")

	triggerCmd := &cobra.Command{
		Use:   "trigger [workflow-id]",
		Short: "Trigger a workflow manually and wait for the execution to finish",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			payloadJSON, err := cmd.Flags().GetString("payload")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving payload flag: %v", err)
				os.Exit(1)
			}
			payload := map[string]interface{}{}
			if payloadJSON != "" {
				if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
					fmt.Fprintf(os.Stderr, "Error: invalid payload JSON: %v\n", err)
					os.Exit(1)
				}
			}
			store := initStore(cmd)
			defer store.Close()
			eng := newEngine(cmd.Context(), store)
			execID, err := eng.TriggerManually(args[0], payload)
			if err != nil {
				log.GetLogger().Errorf("Failed to trigger workflow %s: %v", args[0], err)
				fmt.Fprintf(os.Stderr, "Error: failed to trigger workflow: %v\n", err)
				os.Exit(1)
			}
			eng.Stop()
			exec, err := eng.GetExecutionStatus(execID)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to fetch execution %s: %v\n", execID, err)
				os.Exit(1)
			}
			printExecution(exec)
		},
	}
	triggerCmd.Flags().String("payload", "", "Trigger payload as a JSON object")

	statusCmd := &cobra.Command{
		Use:   "status [execution-id]",
		Short: "Show an execution's status and step log",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			exec, err := store.GetExecution(args[0])
			if err != nil {
				log.GetLogger().Errorf("Failed to get execution %s: %v", args[0], err)
				fmt.Fprintf(os.Stderr, "Error: failed to get execution: %v\n", err)
				os.Exit(1)
			}
			if exec.Log == nil {
				exec.Log, _ = store.GetLog(args[0])
			}
			printExecution(exec)
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel [execution-id]",
		Short: "Request cancellation of a running execution",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(cmd)
			defer store.Close()
			eng := newEngine(cmd.Context(), store)
			defer eng.Stop()
			if err := eng.CancelExecution(args[0]); err != nil {
				log.GetLogger().Errorf("Failed to cancel execution %s: %v", args[0], err)
				fmt.Fprintf(os.Stderr, "Error: failed to cancel execution: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Cancellation requested for execution %s\n", args[0])
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the flowline server: HTTP surface plus the schedule loop",
		Run: func(cmd *cobra.Command, args []string) {
			port, err := cmd.Flags().GetString("port")
			if err != nil {
				log.GetLogger().Errorf("Error retrieving port flag: %v", err)
				os.Exit(1)
			}
			store := initStore(cmd)
			defer store.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			eng := newEngine(ctx, store)
			defer eng.Stop()
			go eng.RunScheduler(ctx, 30*time.Second)

			if err := internal_http.StartServer(port, eng, store); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "8080", "HTTP listen port")

	rootCmd.AddCommand(createCmd, listCmd, enableCmd, triggerCmd, statusCmd, cancelCmd, serveCmd)
}

func createWorkflow(store *internal_storage.PostgresStore, path string) {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.GetLogger().Errorf("Failed to read definition file: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to read definition file: %v\n", err)
		os.Exit(1)
	}
	var wf models.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid workflow definition: %v\n", err)
		os.Exit(1)
	}
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if err := engine.ValidateWorkflow(wf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: workflow definition rejected: %v\n", err)
		os.Exit(1)
	}
	if err := store.SaveWorkflow(wf); err != nil {
		log.GetLogger().Errorf("Failed to save workflow: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to save workflow: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "Saved workflow '%s' with ID %s\n", wf.Name, wf.ID)
}

func listWorkflows(store *internal_storage.PostgresStore) {
	workflows, err := store.ListWorkflows()
	if err != nil {
		log.GetLogger().Errorf("Failed to list workflows: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to list workflows: %v\n", err)
		os.Exit(1)
	}
	if len(workflows) == 0 {
		fmt.Fprintf(os.Stdout, "No workflows found.\n")
		return
	}
	fmt.Fprintf(os.Stdout, "Workflows:\n")
	for _, wf := range workflows {
		fmt.Fprintf(os.Stdout, "- ID: %s, Name: %s, Version: %d, Enabled: %v, Created: %s\n",
			wf.ID, wf.Name, wf.Version, wf.Enabled, wf.CreatedAt.Format(time.RFC3339))
	}
}

func printExecution(exec models.Execution) {
	fmt.Fprintf(os.Stdout, "Execution %s\n", exec.ID)
	fmt.Fprintf(os.Stdout, "  Workflow: %s\n", exec.WorkflowID)
	fmt.Fprintf(os.Stdout, "  Status:   %s\n", exec.Status)
	if exec.ErrorMsg != "" {
		fmt.Fprintf(os.Stdout, "  Error:    %s\n", exec.ErrorMsg)
	}
	for _, entry := range exec.Log {
		fmt.Fprintf(os.Stdout, "  - node=%s attempts=%d", entry.NodeID, entry.Attempts)
		if entry.ErrorMsg != "" {
			fmt.Fprintf(os.Stdout, " error=%q", entry.ErrorMsg)
		}
		fmt.Fprintln(os.Stdout)
	}
}

func newEngine(ctx context.Context, store *internal_storage.PostgresStore) *engine.Engine {
	registry := engine.NewRegistry()
	if err := engine.RegisterBuiltins(registry, log.GetLogger()); err != nil {
		log.GetLogger().Errorf("Failed to register builtin primitives: %v", err)
		os.Exit(1)
	}
	return engine.NewEngine(ctx, store, registry, log.GetLogger(), 0)
}

func initStore(cmd *cobra.Command) *internal_storage.PostgresStore {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
