package iprange

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func TestNewFsStorageDriver_PathDoesNotExist(t *testing.T) {
	tmp := t.TempDir()
	missing := filepath.Join(tmp, "does-not-exist")
	drv, err := NewFsStorageDriver(missing)
	if err == nil {
		t.Fatalf("expected error for non-existent path, got driver: %+v", drv)
	}
	if !errors.Is(err, syscall.ENOENT) {
		t.Fatalf("expected wrapped ENOENT, got: %v", err)
	}
}

func TestNewFsStorageDriver_PathIsNotDirectory(t *testing.T) {
	tmp := t.TempDir()
	filePath := filepath.Join(tmp, "file.txt")
	if err := os.WriteFile(filePath, []byte("hi"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	drv, err := NewFsStorageDriver(filePath)
	if err == nil {
		t.Fatalf("expected error for non-directory path, got driver: %+v", drv)
	}
	if !errors.Is(err, syscall.ENOTDIR) {
		t.Fatalf("expected wrapped ENOTDIR, got: %v", err)
	}
}

func TestFsStorageDriver_WriteAndReadExport(t *testing.T) {
	tmp := t.TempDir()
	drv, err := NewFsStorageDriver(tmp)
	if err != nil {
		t.Fatalf("NewFsStorageDriver failed: %v", err)
	}

	name := "my export/name?with spaces" // exercises URL escaping
	content := "1.2.3.4\n5.6.7.8"

	if err := drv.WriteExport(name, io.NopCloser(strings.NewReader(content))); err != nil {
		t.Fatalf("WriteExport failed: %v", err)
	}

	entries, err := os.ReadDir(tmp)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].IsDir() {
		t.Fatalf("expected a single file in the data directory, got %d entries", len(entries))
	}

	r, err := drv.ReadExport(name)
	if err != nil {
		t.Fatalf("ReadExport failed: %v", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != content {
		t.Fatalf("unexpected content: got %q want %q", string(data), content)
	}
}

func TestFsStorageDriver_WriteExportReplaces(t *testing.T) {
	tmp := t.TempDir()
	drv, err := NewFsStorageDriver(tmp)
	if err != nil {
		t.Fatalf("NewFsStorageDriver failed: %v", err)
	}

	if err := drv.WriteExport("a.txt", io.NopCloser(strings.NewReader("a much longer first version"))); err != nil {
		t.Fatalf("WriteExport failed: %v", err)
	}
	if err := drv.WriteExport("a.txt", io.NopCloser(strings.NewReader("second"))); err != nil {
		t.Fatalf("WriteExport failed: %v", err)
	}

	r, err := drv.ReadExport("a.txt")
	if err != nil {
		t.Fatalf("ReadExport failed: %v", err)
	}
	defer r.Close()
	data, _ := io.ReadAll(r)
	if string(data) != "second" {
		t.Fatalf("expected replaced content, got %q", string(data))
	}

	if _, err := os.Stat(filepath.Join(tmp, "export_a.txt.bak")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected backup file to be removed, stat error: %v", err)
	}
}

// faultyReader simulates a reader that fails immediately
type faultyReader struct{}

func (f *faultyReader) Read(p []byte) (int, error) { return 0, io.ErrUnexpectedEOF }
func (f *faultyReader) Close() error               { return nil }

func TestFsStorageDriver_BackupAndRestoreOnWriteFailure(t *testing.T) {
	tmp := t.TempDir()
	drv, err := NewFsStorageDriver(tmp)
	if err != nil {
		t.Fatalf("NewFsStorageDriver failed: %v", err)
	}

	name := "summary.csv"

	if err := drv.WriteExport(name, io.NopCloser(strings.NewReader("original"))); err != nil {
		t.Fatalf("initial WriteExport failed: %v", err)
	}

	// A failing reader should keep the original via backup-restore
	err = drv.WriteExport(name, &faultyReader{})
	if err == nil {
		t.Fatalf("expected error from WriteExport with faulty reader")
	}

	r, err := drv.ReadExport(name)
	if err != nil {
		t.Fatalf("ReadExport failed: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "original" {
		t.Fatalf("backup restore failed, got %q", string(data))
	}
}

func TestFsStorageDriver_ReadExport_MissingReturnsENOENT(t *testing.T) {
	tmp := t.TempDir()
	drv, err := NewFsStorageDriver(tmp)
	if err != nil {
		t.Fatalf("NewFsStorageDriver failed: %v", err)
	}

	_, err = drv.ReadExport("missing.txt")
	if err == nil {
		t.Fatalf("expected error when reading missing export")
	}
	if !errors.Is(err, syscall.ENOENT) {
		t.Fatalf("expected wrapped ENOENT, got: %v", err)
	}
}

func TestFsStorageDriver_Checkpoints_RoundTrip(t *testing.T) {
	tmp := t.TempDir()
	drv, err := NewFsStorageDriver(tmp)
	if err != nil {
		t.Fatalf("NewFsStorageDriver failed: %v", err)
	}

	cps := &AllCheckpoints{Checkpoints: map[string]Checkpoint{
		"a": {LastWrittenUnix: 123, Rows: 7},
		"b": {LastWrittenUnix: 456},
	}}

	if err := drv.WriteCheckpoints(cps); err != nil {
		t.Fatalf("WriteCheckpoints failed: %v", err)
	}

	got, err := drv.ReadCheckpoints()
	if err != nil {
		t.Fatalf("ReadCheckpoints failed: %v", err)
	}

	if got.Checkpoints["a"].LastWrittenUnix != 123 || got.Checkpoints["a"].Rows != 7 || got.Checkpoints["b"].LastWrittenUnix != 456 {
		t.Fatalf("unexpected checkpoints data: %+v", got)
	}
}

func TestFsStorageDriver_ReadCheckpoints_MissingReturnsENOENT(t *testing.T) {
	tmp := t.TempDir()
	drv, err := NewFsStorageDriver(tmp)
	if err != nil {
		t.Fatalf("NewFsStorageDriver failed: %v", err)
	}

	_, err = drv.ReadCheckpoints()
	if err == nil {
		t.Fatalf("expected error when reading missing checkpoints file")
	}
	if !errors.Is(err, syscall.ENOENT) {
		t.Fatalf("expected wrapped ENOENT, got: %v", err)
	}
}

func TestFsStorageDriver_ReadCheckpoints_EmptyFileResultsInNonNilMap(t *testing.T) {
	tmp := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmp, "checkpoints.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("write file failed: %v", err)
	}

	drv, err := NewFsStorageDriver(tmp)
	if err != nil {
		t.Fatalf("NewFsStorageDriver failed: %v", err)
	}

	got, err := drv.ReadCheckpoints()
	if err != nil {
		t.Fatalf("ReadCheckpoints failed: %v", err)
	}
	if got.Checkpoints == nil {
		t.Fatalf("expected non-nil checkpoints map for empty JSON object")
	}
}

func TestExportNameTooLong_Error(t *testing.T) {
	tmp := t.TempDir()
	drv, err := NewFsStorageDriver(tmp)
	if err != nil {
		t.Fatalf("NewFsStorageDriver failed: %v", err)
	}

	longName := strings.Repeat("x", ExportNameMaxSize+1)
	err = drv.WriteExport(longName, io.NopCloser(strings.NewReader("data")))
	if err == nil {
		t.Fatalf("expected error for too long export name")
	}
	if !errors.Is(err, ErrExportNameTooLong) {
		t.Fatalf("expected ErrExportNameTooLong, got: %v", err)
	}
}
