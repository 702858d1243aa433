package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotlin-lsp/bridge/internal/logger"
	"github.com/kotlin-lsp/bridge/internal/status"
)

// fakeRelease serves a GitHub-shaped release manifest plus the zip asset,
// counting how often each is fetched.
type fakeRelease struct {
	tag     string
	archive []byte

	manifestHits atomic.Int64
	assetHits    atomic.Int64

	srv *httptest.Server
}

func newFakeRelease(t *testing.T, tag, launcher string) *fakeRelease {
	t.Helper()

	f := &fakeRelease{tag: tag, archive: makeZip(t, map[string]string{
		"server/bin/" + launcher: "#!/bin/sh\necho " + tag + "\n",
		"server/lib/server.jar":  "jar-bytes-" + tag,
	})}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/kotlin-language-server/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		f.manifestHits.Add(1)
		json.NewEncoder(w).Encode(Release{
			TagName: f.tag,
			Assets: []Asset{
				{Name: "server.zip", DownloadURL: f.srv.URL + "/download/server.zip"},
				{Name: "server-windows.zip", DownloadURL: f.srv.URL + "/download/other.zip"},
			},
		})
	})
	mux.HandleFunc("/download/server.zip", func(w http.ResponseWriter, r *http.Request) {
		f.assetHits.Add(1)
		w.Write(f.archive)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func makeZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func testArtifact(installDir string) Artifact {
	return Artifact{
		DisplayName:  "test server",
		Repo:         "acme/kotlin-language-server",
		AssetName:    "server.zip",
		ExtractedDir: "server",
		InstallDir:   installDir,
	}
}

func newDownloader(f *fakeRelease) *Downloader {
	return &Downloader{
		APIBaseURL: f.srv.URL,
		Log:        logger.NewNop(),
		Status:     status.Nop{},
	}
}

func TestEnsureInstallsWhenMissing(t *testing.T) {
	f := newFakeRelease(t, "v1.3.0", "kotlin-language-server")
	d := newDownloader(f)
	a := testArtifact(filepath.Join(t.TempDir(), "install"))

	dir, err := d.Ensure(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, a.InstallDir, dir)

	assert.Equal(t, "v1.3.0", d.InstalledVersion(a))
	assert.FileExists(t, filepath.Join(a.InstallDir, "server", "lib", "server.jar"))

	launcher := a.LauncherPath("kotlin-language-server")
	info, err := os.Stat(launcher)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.NotZero(t, info.Mode()&0o111, "launcher not executable")
	}

	assert.EqualValues(t, 1, f.manifestHits.Load())
	assert.EqualValues(t, 1, f.assetHits.Load())
}

func TestEnsureIsIdempotent(t *testing.T) {
	f := newFakeRelease(t, "v1.3.0", "kotlin-language-server")
	d := newDownloader(f)
	a := testArtifact(filepath.Join(t.TempDir(), "install"))

	_, err := d.Ensure(context.Background(), a)
	require.NoError(t, err)

	jar := filepath.Join(a.InstallDir, "server", "lib", "server.jar")
	before, err := os.Stat(jar)
	require.NoError(t, err)

	// The second invocation touches neither the network nor the install.
	_, err = d.Ensure(context.Background(), a)
	require.NoError(t, err)

	assert.EqualValues(t, 1, f.manifestHits.Load())
	assert.EqualValues(t, 1, f.assetHits.Load())

	after, err := os.Stat(jar)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestEnsureReinstallsAfterPartialDelete(t *testing.T) {
	f := newFakeRelease(t, "v1.3.0", "kotlin-language-server")
	d := newDownloader(f)
	a := testArtifact(filepath.Join(t.TempDir(), "install"))

	_, err := d.Ensure(context.Background(), a)
	require.NoError(t, err)

	// Version file present but extracted contents gone: stale install.
	require.NoError(t, os.RemoveAll(filepath.Join(a.InstallDir, "server")))

	_, err = d.Ensure(context.Background(), a)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(a.InstallDir, "server", "lib", "server.jar"))
	assert.EqualValues(t, 2, f.assetHits.Load())
}

func TestUpdateSkipsCurrentVersion(t *testing.T) {
	f := newFakeRelease(t, "v1.3.0", "kotlin-language-server")
	d := newDownloader(f)
	a := testArtifact(filepath.Join(t.TempDir(), "install"))

	_, err := d.Ensure(context.Background(), a)
	require.NoError(t, err)

	updated, err := d.Update(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.EqualValues(t, 1, f.assetHits.Load())
}

func TestUpdateReplacesStaleVersion(t *testing.T) {
	f := newFakeRelease(t, "v1.3.0", "kotlin-language-server")
	d := newDownloader(f)
	a := testArtifact(filepath.Join(t.TempDir(), "install"))

	_, err := d.Ensure(context.Background(), a)
	require.NoError(t, err)

	// A newer release appears.
	f.tag = "v1.4.0"
	f.archive = makeZip(t, map[string]string{
		"server/bin/kotlin-language-server": "#!/bin/sh\necho v1.4.0\n",
		"server/lib/server.jar":             "jar-bytes-v1.4.0",
	})

	updated, err := d.Update(context.Background(), a)
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "v1.4.0", d.InstalledVersion(a))

	data, err := os.ReadFile(filepath.Join(a.InstallDir, "server", "lib", "server.jar"))
	require.NoError(t, err)
	assert.Equal(t, "jar-bytes-v1.4.0", string(data))
}

func TestEnsureFailsWithoutAsset(t *testing.T) {
	f := newFakeRelease(t, "v1.3.0", "kotlin-language-server")
	d := newDownloader(f)
	a := testArtifact(filepath.Join(t.TempDir(), "install"))
	a.AssetName = "nonexistent.zip"

	_, err := d.Ensure(context.Background(), a)
	assert.ErrorContains(t, err, "no asset")
}

func TestEnsureSurfacesManifestErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer srv.Close()

	d := &Downloader{APIBaseURL: srv.URL, Log: logger.NewNop(), Status: status.Nop{}}
	a := testArtifact(filepath.Join(t.TempDir(), "install"))

	_, err := d.Ensure(context.Background(), a)
	assert.ErrorContains(t, err, "HTTP 403")
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	archive := makeZip(t, map[string]string{"../escape.txt": "nope"})
	tmp := filepath.Join(t.TempDir(), "evil.zip")
	require.NoError(t, os.WriteFile(tmp, archive, 0o600))

	err := extractZip(tmp, filepath.Join(t.TempDir(), "install"))
	assert.ErrorContains(t, err, "escapes install dir")
}
