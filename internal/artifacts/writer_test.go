package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/animus-coder/contractfix/internal/config"
	"github.com/animus-coder/contractfix/internal/patch"
)

type fakeUploader struct {
	mu   sync.Mutex
	puts map[string]string
	fail string
}

func (f *fakeUploader) Put(_ context.Context, runID, name string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if name == f.fail {
		return errors.New("boom")
	}
	if f.puts == nil {
		f.puts = make(map[string]string)
	}
	f.puts[objectKey(runID, name)] = string(content)
	return nil
}

func TestWriterLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".agentic")
	w, err := NewWriter(dir, "run-1")
	require.NoError(t, err)

	require.NoError(t, w.WriteText(SummaryFile, "summary"))
	require.NoError(t, w.WriteText(ParsedFile, "== Parsed Test Results =="))

	set := patch.Set{
		{Path: "b.txt", Body: "--- a/b.txt\n"},
		{Path: "a.txt", Body: "--- a/a.txt\n"},
	}
	names, err := w.WritePatches(set)
	require.NoError(t, err)
	require.Equal(t, []string{"patches/patch_01.diff", "patches/patch_02.diff"}, names)

	data, err := os.ReadFile(filepath.Join(dir, "patches", "patch_01.diff"))
	require.NoError(t, err)
	require.Equal(t, "--- a/b.txt\n", string(data))

	data, err = os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	require.Equal(t, "summary", string(data))
	require.Equal(t, filepath.Join(dir, "patches"), w.PatchesDir())
}

func TestWriterPrepareClearsPreviousRun(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "run-1")
	require.NoError(t, err)
	_, err = w.WritePatches(patch.Set{{Path: "a", Body: "1"}, {Path: "b", Body: "2"}, {Path: "c", Body: "3"}})
	require.NoError(t, err)
	_, err = w.WriteFullFiles([]patch.FullFile{{Path: "src/A.java", Body: "class A {}"}})
	require.NoError(t, err)

	w2, err := NewWriter(dir, "run-2")
	require.NoError(t, err)
	require.NoError(t, w2.Prepare())
	_, err = w2.WritePatches(patch.Set{{Path: "a", Body: "new"}})
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, PatchesDir))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = os.Stat(filepath.Join(dir, FullFilesDir))
	require.True(t, os.IsNotExist(err))
}

func TestWriterFullFilesStayInsideRoot(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, "run-1")
	require.NoError(t, err)

	names, err := w.WriteFullFiles([]patch.FullFile{
		{Path: "src/main/java/A.java", Body: "class A {}"},
		{Path: "../../etc/evil", Body: "x"},
		{Path: "/abs/B.java", Body: "class B {}"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"full_files/src/main/java/A.java", "full_files/abs/B.java"}, names)

	data, err := os.ReadFile(filepath.Join(dir, "full_files", "src", "main", "java", "A.java"))
	require.NoError(t, err)
	require.Equal(t, "class A {}", string(data))
}

func TestWriterMirrorUploadsEveryArtifact(t *testing.T) {
	up := &fakeUploader{fail: ParsedFile}
	w, err := NewWriter(t.TempDir(), "run-42", WithMirror(up))
	require.NoError(t, err)

	require.NoError(t, w.WriteText(SummaryFile, "s"))
	require.NoError(t, w.WriteText(SummaryFile, "s2"))
	require.NoError(t, w.WriteText(ParsedFile, "p"))
	require.NoError(t, w.WriteJSON(ResultFile, map[string]int{"proposedPatchCount": 0}))
	require.Equal(t, []string{SummaryFile, ParsedFile, ResultFile}, w.Written())

	err = w.Mirror(context.Background())
	require.ErrorContains(t, err, "upload parsed.txt")
	require.Equal(t, "s2", up.puts["run-42/summary.txt"])
	require.Contains(t, up.puts["run-42/result.json"], `"proposedPatchCount": 0`)
}

func TestNewS3MirrorValidates(t *testing.T) {
	_, err := NewS3Mirror(s3Config("", "bucket"))
	require.ErrorContains(t, err, "endpoint")
	_, err = NewS3Mirror(s3Config("localhost:9000", ""))
	require.ErrorContains(t, err, "bucket")

	m, err := NewS3Mirror(s3Config("localhost:9000", "runs"))
	require.NoError(t, err)
	require.Equal(t, "runs", m.bucketName)
	require.Equal(t, "us-east-1", m.region)
	require.Equal(t, "text/x-diff", contentType("patches/patch_01.diff"))
	require.Equal(t, "run/patches/patch_01.diff", objectKey("run", "/patches/patch_01.diff"))
}

func s3Config(endpoint, bucket string) config.S3Config {
	return config.S3Config{
		Enabled:   true,
		Endpoint:  endpoint,
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    bucket,
	}
}
