package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mtzanidakis/fedpipe/internal/bundle"
	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/component"
)

func runCompile(args []string) error {
	var path, outDir, bundlePath string
	if _, err := parseFlags(args, map[string]*string{
		"-f":      &path,
		"-o":      &outDir,
		"-bundle": &bundlePath,
	}); err != nil {
		return err
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "Usage: fedpipe compile -f <pipeline.hcl> [-o <dir>] [-bundle <job.tar.zst>]\n")
		return fmt.Errorf("missing -f flag")
	}
	if outDir == "" {
		outDir = "."
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	job, err := compileFile(path, cfg)
	if err != nil {
		return err
	}

	if err := writeArtifacts(outDir, job); err != nil {
		return err
	}
	if bundlePath != "" {
		if err := bundle.WriteFile(bundlePath, job); err != nil {
			return fmt.Errorf("write bundle: %w", err)
		}
		size := int64(0)
		if info, err := os.Stat(bundlePath); err == nil {
			size = info.Size()
		}
		fmt.Fprintf(os.Stderr, "Bundle written: %s, %s\n", bundlePath, formatSize(size))
	}

	fmt.Println(job.Digest())
	return nil
}

func writeArtifacts(dir string, job *compiler.Job) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	files := map[string][]byte{
		bundle.StructureEntry: job.Structure(),
		bundle.RuntimeEntry:   job.Runtime(),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func runDiff(args []string) error {
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: fedpipe diff <a.tar.zst> <b.tar.zst>\n")
		return fmt.Errorf("expected two bundles")
	}
	reg := component.Default()
	oldJob, err := bundle.ReadFile(args[0], reg)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	newJob, err := bundle.ReadFile(args[1], reg)
	if err != nil {
		return fmt.Errorf("read %s: %w", args[1], err)
	}

	d := compiler.Diff(oldJob, newJob)
	if !d.HasChanges() {
		fmt.Println("No changes.")
		return nil
	}
	printDiff(os.Stdout, d)
	return nil
}
