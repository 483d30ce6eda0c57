package bundle

import (
	"archive/tar"
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/mtzanidakis/fedpipe/internal/compiler"
	"github.com/mtzanidakis/fedpipe/internal/component"
	"github.com/mtzanidakis/fedpipe/internal/pipeline"
)

func compileJob(t *testing.T) *compiler.Job {
	t.Helper()
	reg := component.Default()
	g := pipeline.New()
	if err := g.SetRoleBinding("guest", 9999,
		pipeline.RoleParties{Role: "guest", Parties: []int64{9999}},
		pipeline.RoleParties{Role: "host", Parties: []int64{10000}},
	); err != nil {
		t.Fatal(err)
	}
	reader, _ := reg.New("reader_0", component.KindReader, nil)
	_ = reader.SetRoleParams("guest", component.Params{"table": map[string]any{"name": "breast_homo_guest"}})
	dataio, _ := reg.New("dataio_0", component.KindDataIO, component.Params{"with_label": true})
	if err := g.AddComponent(reader); err != nil {
		t.Fatal(err)
	}
	if err := g.AddComponent(dataio, pipeline.Bind("data", "reader_0", "data")); err != nil {
		t.Fatal(err)
	}
	job, err := compiler.Compile(g)
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestRoundTrip(t *testing.T) {
	job := compileJob(t)
	path := filepath.Join(t.TempDir(), "job.tar.zst")
	if err := WriteFile(path, job); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	got, err := ReadFile(path, component.Default())
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if got.Digest() != job.Digest() {
		t.Errorf("expected digest %s, got %s", job.Digest(), got.Digest())
	}
	if !bytes.Equal(got.Structure(), job.Structure()) || !bytes.Equal(got.Runtime(), job.Runtime()) {
		t.Error("expected artifacts to survive the bundle unchanged")
	}
}

func TestDeterministic(t *testing.T) {
	var a, b bytes.Buffer
	if err := Write(&a, compileJob(t)); err != nil {
		t.Fatal(err)
	}
	if err := Write(&b, compileJob(t)); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("equal jobs must produce equal bundles")
	}
}

func writeRaw(t *testing.T, entries map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(zw)
	for _, name := range []string{StructureEntry, RuntimeEntry, DigestEntry} {
		data, ok := entries[name]
		if !ok {
			continue
		}
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(data)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()
	zw.Close()
	return &buf
}

func TestDigestMismatch(t *testing.T) {
	job := compileJob(t)
	buf := writeRaw(t, map[string]string{
		StructureEntry: string(job.Structure()),
		RuntimeEntry:   string(job.Runtime()),
		DigestEntry:    "0000\n",
	})
	if _, err := Read(buf, component.Default()); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected ErrDigestMismatch, got %v", err)
	}
}

func TestMissingEntry(t *testing.T) {
	job := compileJob(t)
	buf := writeRaw(t, map[string]string{
		StructureEntry: string(job.Structure()),
		DigestEntry:    job.Digest(),
	})
	if _, err := Read(buf, component.Default()); err == nil {
		t.Fatal("expected error for a bundle without runtime.json")
	}
}

func TestNotABundle(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte("plain text")), component.Default()); err == nil {
		t.Fatal("expected error for non-zstd input")
	}
}
