package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veridoc/veridoc/internal/lib"
	"github.com/veridoc/veridoc/internal/models"
	"github.com/veridoc/veridoc/internal/pipeline"
	"github.com/veridoc/veridoc/internal/services"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "veridoc",
	Short: "Veridoc - compliance document lifecycle engine",
	Long: `Veridoc moves compliance documents through a resumable pipeline:
intake, classification, and extraction, backed by a persistent work queue.

PDF uploads fan out into one document per page; pages are classified and
extracted individually while the container keeps the lineage. Documents can
be linked into cases, and a case summary aggregates extraction results with
cross-document consistency checks.

Classification and extraction run against external HTTP capabilities with
automatic retries for transient failures. Processing is resumable: stages
that already succeeded are skipped unless reprocessing is requested.

Example:
  veridoc queue add invoice.pdf
  veridoc process --drain
  veridoc case link CASE_001 DOC_20260830_120000_A3F8B
  veridoc case summary CASE_001`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./veridoc.yaml, ~/.config/veridoc/veridoc.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.SetVersionTemplate("Veridoc version {{.Version}}\n")
}

// appLogger returns the logger honoring the --verbose flag
func appLogger() *lib.Logger {
	if verbose {
		return lib.NewLogger(lib.LogLevelDebug)
	}
	return lib.DefaultLogger
}

// appContext is the wired set of services every subcommand works against
type appContext struct {
	Config models.ProjectConfig
	Logger *lib.Logger
	Docs   services.DocumentRepository
	Queue  *services.DocumentQueue
	Cases  services.CaseRepository
}

// loadApp loads configuration and wires the stores
func loadApp() (*appContext, error) {
	config, err := services.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := appLogger()
	docs := services.NewFileDocumentStore(config.DocumentsDir, logger)
	return &appContext{
		Config: *config,
		Logger: logger,
		Docs:   docs,
		Queue:  services.NewDocumentQueue(config.DocumentsDir, config.Intake, logger),
		Cases:  services.NewFileCaseStore(config.DocumentsDir, docs, logger),
	}, nil
}

// newRunner wires a pipeline runner with HTTP capabilities and the pdfcpu
// renderer
func (app *appContext) newRunner() *pipeline.Runner {
	httpClient := services.NewHTTPClient(
		app.Config.Capabilities.Timeout(),
		app.Config.Retry,
		app.Logger,
	)
	return pipeline.NewRunner(
		app.Config,
		app.Docs,
		app.Queue,
		services.NewPDFCPUSplitter(app.Logger),
		services.NewHTTPClassifier(app.Config.Capabilities.Classifier.URL, httpClient),
		services.NewHTTPExtractor(app.Config.Capabilities.Extractor.URL, httpClient),
		app.Logger,
	)
}

// newAggregator wires a case aggregator
func (app *appContext) newAggregator() *pipeline.Aggregator {
	return &pipeline.Aggregator{
		Docs:   app.Docs,
		Cases:  app.Cases,
		Logger: app.Logger,
	}
}
