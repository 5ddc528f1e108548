package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/ormasoftchile/dataward/pkg/contract"
	"github.com/ormasoftchile/dataward/pkg/serve"
	"github.com/ormasoftchile/dataward/pkg/store"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dataward",
	Short: "Data Contract Execution Engine",
	Long:  "dataward — validates tabular datasets against declarative data contracts (schema rules, quality constraints, SLA thresholds) before acceptance downstream.",
}

// --- check ---

var checkCmd = &cobra.Command{
	Use:   "check [contract.yaml]",
	Short: "Validate a contract YAML file against the schema and consistency rules",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	c, probs := contract.ValidateFile(args[0])
	var errors, warnings []*contract.Problem
	for _, p := range probs {
		if p.Severity == "warning" {
			warnings = append(warnings, p)
		} else {
			errors = append(errors, p)
		}
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "  ⚠ [%s] %s\n", w.Phase, w.Message)
		if w.Path != "" {
			fmt.Fprintf(os.Stderr, "    at: %s\n", w.Path)
		}
	}
	if len(errors) > 0 {
		fmt.Fprintf(os.Stderr, "Contract check failed: %d error(s)\n\n", len(errors))
		for i, e := range errors {
			fmt.Fprintf(os.Stderr, "  %d. [%s] %s\n", i+1, e.Phase, e.Message)
			if e.Path != "" {
				fmt.Fprintf(os.Stderr, "     at: %s\n", e.Path)
			}
		}
		return fmt.Errorf("contract check failed with %d error(s)", len(errors))
	}
	fmt.Printf("✓ %s v%s is valid (%d columns, %d constraints)\n", c.Name, c.Version, len(c.Columns), len(c.Constraints))
	return nil
}

// --- run ---

var (
	runSource      string
	runTarget      string
	runFailFast    bool
	runDropInvalid bool
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run [contract.yaml]",
	Short: "Execute a data contract: validate the source dataset and write the target",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	req := serve.Request{
		ContractPath:    args[0],
		SourcePath:      runSource,
		TargetPath:      runTarget,
		FailFast:        runFailFast,
		DropInvalidRows: runDropInvalid,
	}

	router, err := buildStore(ctx, args[0], runSource, runTarget)
	if err != nil {
		return err
	}
	handler := serve.NewHandler(router, slog.New(slog.NewTextHandler(os.Stderr, nil)))

	resp, err := handler.Execute(ctx, req)
	if err != nil {
		return err
	}

	if runJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(data))
	} else {
		fmt.Print(renderReport(resp))
	}

	if !resp.Results.Success {
		return fmt.Errorf("pipeline validation failed")
	}
	return nil
}

// buildStore wires the storage router, attaching an S3 client only
// when one of the paths actually needs it.
func buildStore(ctx context.Context, paths ...string) (*store.Router, error) {
	needS3 := false
	for _, p := range paths {
		if store.IsS3Path(p) {
			needS3 = true
		}
	}
	if !needS3 {
		return store.NewRouter(nil), nil
	}
	s3s, err := store.NewS3FromEnv(ctx)
	if err != nil {
		return nil, err
	}
	return store.NewRouter(s3s), nil
}

// --- serve ---

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP invocation wrapper",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	// The server may receive s3:// paths at any time, so try to attach
	// a client up front; a missing AWS config only degrades s3 support.
	var remote store.Store
	if s3s, err := store.NewS3FromEnv(ctx); err == nil {
		remote = s3s
	} else {
		log.Warn("s3 support disabled", "error", err)
	}

	handler := serve.NewHandler(store.NewRouter(remote), log)
	log.Info("listening", "addr", serveAddr, "version", version)
	return http.ListenAndServe(serveAddr, handler.Router())
}

// --- schema ---

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Schema operations",
}

var schemaExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the contract JSON Schema to stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := contract.GenerateJSONSchema()
		if err != nil {
			return fmt.Errorf("generate schema: %w", err)
		}
		fmt.Println(string(data))
		return nil
	},
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dataward %s (build: %s)\n", version, commit)
	},
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "", "Source dataset path (overrides the contract's source_path)")
	runCmd.Flags().StringVar(&runTarget, "target", "", "Target dataset path (overrides the contract's target_path)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Stop after the first non-recoverable stage failure")
	runCmd.Flags().BoolVar(&runDropInvalid, "drop-invalid", false, "Filter schema-violating rows out of the output dataset")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "Output the full result as JSON")

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")

	schemaCmd.AddCommand(schemaExportCmd)

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(versionCmd)
}
