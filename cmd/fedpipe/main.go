package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/component"
	"github.com/mtzanidakis/fedpipe/internal/config"
	"github.com/mtzanidakis/fedpipe/internal/hcldef"
	"github.com/mtzanidakis/fedpipe/internal/pipeline"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("fedpipe %s\n", version)
		return
	case "compile":
		err = runCompile(os.Args[2:])
	case "fit":
		err = runFit(os.Args[2:])
	case "engine":
		err = runEngine()
	case "runs":
		err = runRuns(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "diff":
		err = runDiff(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: fedpipe <command>

Commands:
  compile -f <pipeline.hcl> [-o <dir>] [-bundle <job.tar.zst>]
                                    Compile a pipeline and print its digest
  fit -f <pipeline.hcl> [-every <schedule>] [-summary <a,b>]
                                    Compile, submit, await and print summaries
  engine                            Run the local engine behind an embedded NATS server
  runs [-digest <digest>]           List persisted runs
  status <job-id>                   Show a persisted run
  diff <a.tar.zst> <b.tar.zst>      Compare two job bundles
  version                           Print version

Environment:
  FEDPIPE_CONFIG                    Config file (default config/fedpipe.yaml)
`)
}

// loadConfig loads the config and installs the log handler.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

// compileFile builds and compiles the pipeline at path. Parties from the
// config apply when the file declares no roles.
func compileFile(path string, cfg *config.Config) (*compiler.Job, error) {
	def, err := hcldef.Load(path)
	if err != nil {
		return nil, err
	}

	var roles *pipeline.RoleBinding
	if len(cfg.Parties) > 0 {
		roles, err = cfg.RoleBinding()
		if err != nil {
			return nil, err
		}
	}

	g, err := def.Build(component.Default(), roles)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", path, err)
	}
	job, err := compiler.Compile(g)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	slog.Debug("pipeline compiled", "file", path, "digest", job.Digest(), "components", len(job.Components()))
	return job, nil
}

// parseFlags reads "-name value" pairs into values and returns the
// positional arguments.
func parseFlags(args []string, values map[string]*string) ([]string, error) {
	var rest []string
	for i := 0; i < len(args); i++ {
		dst, ok := values[args[i]]
		if !ok {
			if strings.HasPrefix(args[i], "-") {
				return nil, fmt.Errorf("unknown flag %s", args[i])
			}
			rest = append(rest, args[i])
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("missing value for %s", args[i])
		}
		i++
		*dst = args[i]
	}
	return rest, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
