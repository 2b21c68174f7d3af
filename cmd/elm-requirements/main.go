// Package main implements the elm-requirements CLI tool.
// It reports the data requirements of compiled CQL (ELM JSON) libraries.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/engine"
	"github.com/gofhir/elmrequirements/library"
	"github.com/gofhir/elmrequirements/pkg/logger"
	"github.com/gofhir/elmrequirements/report"
)

const version = "0.1.0"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "elm-requirements",
		Short: "Report the data requirements of ELM libraries",
		Long: `elm-requirements - ELM data requirements analyzer

Reads compiled CQL libraries (ELM JSON) from a directory and reports, for
each library, the retrieves, must-support paths, codes, concepts, value sets
and parameters its expressions depend on.

Configuration is read from elm-requirements.yaml in the working directory,
ELMREQ_* environment variables and flags, flags taking precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAnalyzeCommand())
	root.AddCommand(newVersionCommand())
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "elm-requirements v%s\n", version)
		},
	}
}

func newAnalyzeCommand() *cobra.Command {
	var (
		configFile  string
		expressions []string
	)
	defaults := er.DefaultOptions()

	cmd := &cobra.Command{
		Use:   "analyze [Name[@version]]...",
		Short: "Analyze libraries",
		Long: `Analyze the named libraries, or every library in the directory when none
is named. Restricting to expressions requires exactly one library.`,
		Example: `  elm-requirements analyze --dir ./elm Screening@1.0.0
  elm-requirements analyze --dir ./elm --format yaml
  elm-requirements analyze --dir ./elm -e "Has FOBT" Screening`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, cmd)
			if err != nil {
				return err
			}
			if len(expressions) > 0 && len(args) != 1 {
				return errors.New("--expression requires exactly one library")
			}
			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, args, expressions)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./elm-requirements.yaml)")
	flags.StringP("dir", "d", ".", "Directory holding ELM JSON libraries")
	flags.StringP("format", "f", defaults.ReportFormat, "Output format: json, yaml")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error, none")
	flags.Int("cache-size", defaults.LibraryCacheSize, "Number of libraries kept in memory")
	flags.Int("workers", defaults.WorkerCount, "Libraries analyzed in parallel")
	flags.StringArrayVarP(&expressions, "expression", "e", nil, "Only analyze this expression (repeatable)")
	return cmd
}

func runAnalyze(ctx context.Context, stdout, stderr io.Writer, cfg *Config, args, expressions []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.New(stderr, logger.ParseLevel(cfg.LogLevel))

	src := library.NewDirSource(cfg.LibraryDir)
	analyzer, err := engine.NewFromSources([]library.Source{src},
		er.WithLogger(log),
		er.WithLibraryCacheSize(cfg.CacheSize),
		er.WithWorkerCount(cfg.Workers),
		er.WithReportFormat(cfg.Format),
	)
	if err != nil {
		return err
	}

	ids := make([]elm.VersionedIdentifier, 0, len(args))
	for _, arg := range args {
		ids = append(ids, parseLibraryArg(arg))
	}
	if len(ids) == 0 {
		if ids, err = src.List(); err != nil {
			return fmt.Errorf("listing %s: %w", cfg.LibraryDir, err)
		}
		if len(ids) == 0 {
			return fmt.Errorf("no libraries in %s", cfg.LibraryDir)
		}
	}

	var outcomes []engine.Outcome
	if len(expressions) > 0 {
		res, err := analyzer.Analyze(ctx, ids[0], expressions...)
		outcomes = []engine.Outcome{{Library: ids[0], Result: res, Err: err}}
	} else {
		outcomes = analyzer.AnalyzeBatch(ctx, ids)
	}
	if mgr, ok := analyzer.Resolver().(*library.Manager); ok {
		stats := mgr.CacheStats()
		log.Debug("library cache: %d/%d handles, %d hits, %d misses, %d evictions",
			stats.Size, stats.Capacity, stats.Hits, stats.Misses, stats.Evicts)
	}

	failed := 0
	for i, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", o.Library, o.Err)
			continue
		}
		rep, err := report.Build(ctx, o.Result)
		if err != nil {
			failed++
			fmt.Fprintf(stderr, "%s: %v\n", o.Library, err)
			continue
		}
		if cfg.Format == er.FormatYAML && i > 0 {
			fmt.Fprintln(stdout, "---")
		}
		if err := report.Write(stdout, rep, cfg.Format); err != nil {
			return err
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d libraries failed", failed, len(outcomes))
	}
	return nil
}

// parseLibraryArg parses "Name" or "Name@version".
func parseLibraryArg(arg string) elm.VersionedIdentifier {
	name, ver, _ := strings.Cut(arg, "@")
	return elm.IdentifierFromPath(name, ver)
}
