package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/skinai/internal/config"
	"github.com/example/skinai/internal/labels"
)

// version is set at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "skinai",
	Short: "Skin condition photo classifier",
	Long:  "skinai classifies skin photos into a fixed set of conditions and\nexplains how much the answer can be trusted.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var classifyFlags struct {
	timeout time.Duration
}

var classifyCmd = &cobra.Command{
	Use:   "classify <image>",
	Short: "Classify one image file and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Print the active label set",
	Args:  cobra.NoArgs,
	RunE:  runLabels,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SKINAI_CONFIG"), "YAML config file (env SKINAI_CONFIG)")
	classifyCmd.Flags().DurationVar(&classifyFlags.timeout, "timeout", 2*time.Minute, "how long to wait for the model to load")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.Version = version
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer a.Close()

	server := &http.Server{
		Addr:    a.cfg.Addr,
		Handler: newRouter(a),
	}

	a.logger.Info("skinai API listening",
		zap.String("addr", a.cfg.Addr),
		zap.String("backend", a.cfg.Model.Backend),
		zap.String("version", version),
	)
	return serveHTTPServer(server, a.cfg.ShutdownTimeout, a.logger)
}

func runClassify(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), classifyFlags.timeout)
	defer cancel()

	a, err := newApp(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.models.Wait(ctx); err != nil {
		return fmt.Errorf("model: %w", err)
	}

	pred, err := a.uc.Predict(ctx, data)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(pred)
}

func runLabels(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	set, err := labels.Load(cfg.LabelsPath)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v, using defaults\n", err)
	}
	out := cmd.OutOrStdout()
	for i, label := range set.Labels() {
		fmt.Fprintf(out, "%d\t%s\n", i, label)
	}
	return nil
}
