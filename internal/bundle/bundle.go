// Package bundle packs the artifacts of a compiled job into a single
// zstd-compressed tar archive, for handing a job to another site or keeping
// it next to its results.
package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/component"
)

// Entry names inside a bundle.
const (
	StructureEntry = "structure.json"
	RuntimeEntry   = "runtime.json"
	DigestEntry    = "DIGEST"
)

var ErrDigestMismatch = errors.New("bundle digest mismatch")

// maxEntrySize bounds a single entry when reading untrusted bundles.
const maxEntrySize = 64 << 20

// epoch is the modification time of every entry so equal jobs produce equal
// bundles.
var epoch = time.Unix(0, 0).UTC()

// Write writes job as a bundle to w.
func Write(w io.Writer, job *compiler.Job) error {
	zw, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	entries := []struct {
		name string
		data []byte
	}{
		{StructureEntry, job.Structure()},
		{RuntimeEntry, job.Runtime()},
		{DigestEntry, []byte(job.Digest() + "\n")},
	}
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.data)),
			ModTime:  epoch,
			Typeflag: tar.TypeReg,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return fmt.Errorf("write tar data: %w", err)
		}
	}

	// Close explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}

// Read reads a bundle and rebuilds its job, checking the recorded digest.
func Read(r io.Reader, reg *component.Registry) (*compiler.Job, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	entries := make(map[string][]byte, 3)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}
		switch hdr.Name {
		case StructureEntry, RuntimeEntry, DigestEntry:
		default:
			continue
		}
		if hdr.Size > maxEntrySize {
			return nil, fmt.Errorf("bundle entry %s too large: %d bytes", hdr.Name, hdr.Size)
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, io.LimitReader(tr, maxEntrySize)); err != nil {
			return nil, fmt.Errorf("read tar data: %w", err)
		}
		entries[hdr.Name] = buf.Bytes()
	}

	for _, name := range []string{StructureEntry, RuntimeEntry, DigestEntry} {
		if _, ok := entries[name]; !ok {
			return nil, fmt.Errorf("bundle missing %s", name)
		}
	}

	job, err := compiler.ParseJob(entries[StructureEntry], entries[RuntimeEntry], reg)
	if err != nil {
		return nil, fmt.Errorf("bundle job: %w", err)
	}
	if want := strings.TrimSpace(string(entries[DigestEntry])); job.Digest() != want {
		return nil, fmt.Errorf("%w: recorded %s, artifacts hash to %s", ErrDigestMismatch, want, job.Digest())
	}
	return job, nil
}

// WriteFile writes job as a bundle to path.
func WriteFile(path string, job *compiler.Job) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create bundle file: %w", err)
	}
	if err := Write(f, job); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// ReadFile reads the bundle at path.
func ReadFile(path string, reg *component.Registry) (*compiler.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()
	return Read(f, reg)
}
