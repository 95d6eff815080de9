// Package main is the operator surface for the tool foundry: initialize
// storage, submit candidates, list the library, run static scans and
// verification suites, and dump audit trails.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/anthropics/tool-foundry/internal/config"
	"github.com/anthropics/tool-foundry/internal/domain"
	"github.com/anthropics/tool-foundry/internal/gate"
	"github.com/anthropics/tool-foundry/internal/gateway"
	"github.com/anthropics/tool-foundry/internal/generate"
	"github.com/anthropics/tool-foundry/internal/pipeline"
	"github.com/anthropics/tool-foundry/internal/policy"
	"github.com/anthropics/tool-foundry/internal/registry"
	"github.com/anthropics/tool-foundry/internal/sandbox"
	"github.com/anthropics/tool-foundry/internal/security"
	"github.com/anthropics/tool-foundry/internal/store"
)

const (
	exitOK    = 0
	exitFail  = 1 // verification failure or security rejection
	exitInfra = 2 // sandbox or storage infrastructure failure
)

var (
	version = "dev"

	configPath string
	verbose    bool

	taskID     string
	toolName   string
	category   string
	contractID string
	entryPoint string
)

var rootCmd = &cobra.Command{
	Use:           "foundry",
	Short:         "Verification and registry core for generated tools",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the metadata store and artifacts directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()
		fmt.Printf("initialized %s and %s\n", app.cfg.DBPath, app.cfg.ArtifactsDir)
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <source.py>",
	Short: "Submit a candidate tool through the verification gateway",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		res, err := app.gateway.Submit(cmd.Context(), gateway.SubmitRequest{
			Task:   taskSpec(),
			Source: string(source),
		})
		if err != nil {
			return err
		}
		if res.Artifact == nil {
			fmt.Printf("FAILED at %s: %s\n", res.Outcome.FailedStage, res.Outcome.Reason)
			os.Exit(exitFail)
		}
		fmt.Printf("registered %s (%s)\n", res.Artifact.ID, res.Artifact.Status)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		artifacts, err := app.gateway.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			fmt.Printf("%-40s %-12s %-11s %s\n", a.ID, a.Category, a.Status, a.ContentHash[:12])
		}
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <source.py>",
	Short: "Run the static security analyzer against a source file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.analyzer.Analyze(cmd.Context(), source, domain.ToolCategory(category)); err != nil {
			fmt.Printf("REJECTED: %v\n", err)
			os.Exit(exitFail)
		}
		fmt.Println("OK")
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <source.py>",
	Short: "Run the full verification suite without registering",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		task := taskSpec()
		out, err := app.pipeline.Run(cmd.Context(), pipeline.Submission{
			Source:     string(source),
			Category:   task.Category,
			ContractID: task.ContractID,
			Task:       task,
		})
		if err != nil {
			return err
		}
		if !out.Passed {
			fmt.Printf("FAILED at %s: %s\n", out.FailedStage, out.Reason)
			os.Exit(exitFail)
		}
		fmt.Println("PASSED")
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit <task-id>",
	Short: "Dump a task's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp()
		if err != nil {
			return err
		}
		defer app.Close()

		records, err := app.gateway.AuditTrail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, rec := range records {
			line, _ := json.Marshal(map[string]any{
				"at":       time.Unix(rec.CreatedAt, 0).UTC().Format(time.RFC3339),
				"action":   rec.Action,
				"severity": rec.Severity,
				"decision": json.RawMessage(rec.DecisionJSON),
			})
			fmt.Println(string(line))
		}
		return nil
	},
}

// app bundles the wired components behind one Close.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	logger   *zap.Logger
	analyzer *security.Analyzer
	pipeline *pipeline.Pipeline
	gateway  *gateway.Gateway
}

func (a *app) Close() {
	a.logger.Sync()
	a.db.Close()
}

func buildApp() (*app, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	logger := zap.NewNop()
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		logger = l
	}

	policies := policy.Default()
	if cfg.PolicyPath != "" {
		loaded, err := policy.Load(cfg.PolicyPath)
		if err != nil {
			return nil, err
		}
		policies = loaded
	}

	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(db, cfg.ArtifactsDir, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	analyzer := security.NewAnalyzer(policies)
	execOpts := []sandbox.Option{
		sandbox.WithInterpreter(cfg.Interpreter, cfg.InterpreterArgs...),
		sandbox.WithLogger(logger),
	}
	if cfg.WorkDir != "" {
		execOpts = append(execOpts, sandbox.WithWorkDir(cfg.WorkDir))
	}
	executor := sandbox.NewExecutor(execOpts...)

	provider := &generate.StaticProvider{}
	pipe := pipeline.New(analyzer, executor, policies, provider, pipeline.Config{
		SelfTestTimeout: cfg.SelfTestTimeout(),
		ExecTimeout:     cfg.ExecTimeout(),
	}, logger)

	keeper := gate.New(db, stdinApprover(), gate.Config{
		Relaxed:         cfg.RelaxedApproval,
		ApprovalTimeout: cfg.ApprovalWait(),
	}, logger)

	gw := gateway.New(db, pipe, reg, keeper, policies, logger)

	return &app{
		cfg:      cfg,
		db:       db,
		logger:   logger,
		analyzer: analyzer,
		pipeline: pipe,
		gateway:  gw,
	}, nil
}

// stdinApprover asks the operator on the terminal. Anything but an
// explicit "y" denies.
func stdinApprover() gate.Approver {
	return gate.ApproverFunc(func(ctx context.Context, req gate.ApprovalRequest) (bool, error) {
		fmt.Printf("approve %s for task %s (%s)? [y/N] ", req.Action, req.TaskID, req.Detail)
		answer := make(chan string, 1)
		go func() {
			var s string
			fmt.Scanln(&s)
			answer <- s
		}()
		select {
		case s := <-answer:
			return s == "y" || s == "Y", nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	})
}

func taskSpec() domain.TaskSpec {
	return domain.TaskSpec{
		TaskID:     taskID,
		ToolName:   toolName,
		Category:   domain.ToolCategory(category),
		ContractID: contractID,
		EntryPoint: entryPoint,
	}
}

// exitCode maps an error to the operator contract: infrastructure faults
// are distinct from verification failures.
func exitCode(err error) int {
	var fe *domain.FoundryError
	if errors.As(err, &fe) {
		switch fe.Code {
		case domain.ErrSandboxSpawn.Code,
			domain.ErrSandboxWorkspace.Code,
			domain.ErrSandboxProtocol.Code,
			domain.ErrStoreInit.Code,
			domain.ErrStoreQuery.Code,
			domain.ErrStoreWrite.Code:
			return exitInfra
		}
	}
	return exitFail
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration JSON file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable development logging")

	for _, c := range []*cobra.Command{submitCmd, scanCmd, verifyCmd} {
		c.Flags().StringVar(&taskID, "task-id", "cli", "task identifier")
		c.Flags().StringVar(&toolName, "name", "tool", "tool name")
		c.Flags().StringVar(&category, "category", string(domain.CategoryCalculation), "tool category")
		c.Flags().StringVar(&contractID, "contract", "", "contract identifier")
		c.Flags().StringVar(&entryPoint, "entry", "", "entry point function name")
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(auditCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
