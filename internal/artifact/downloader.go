// Package artifact manages versioned downloads of the external server
// binaries (language server, debug adapter) from GitHub releases.
package artifact

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/kotlin-lsp/bridge/internal/status"
)

const defaultAPIBaseURL = "https://api.github.com"

// Artifact identifies one downloadable server distribution.
type Artifact struct {
	// DisplayName is used in progress and log messages.
	DisplayName string

	// Repo is the GitHub "owner/name" the releases are published under.
	Repo string

	// AssetName is the release asset to download, e.g. "server.zip".
	AssetName string

	// ExtractedDir is the top-level directory inside the archive,
	// e.g. "server". It is replaced wholesale on update.
	ExtractedDir string

	// InstallDir is the local directory the artifact is unpacked into.
	InstallDir string
}

// LauncherPath returns the path of the launcher script inside an installed
// artifact.
func (a Artifact) LauncherPath(name string) string {
	if runtime.GOOS == "windows" {
		name += ".bat"
	}
	return filepath.Join(a.InstallDir, a.ExtractedDir, "bin", name)
}

func (a Artifact) versionFile() string {
	return filepath.Join(a.InstallDir, "version.txt")
}

// Release is the subset of the GitHub release manifest the downloader needs.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset is a downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// Downloader fetches and unpacks artifacts. It performs no retries: a failed
// download or extraction is terminal for that activation attempt.
type Downloader struct {
	// APIBaseURL overrides the GitHub API endpoint, for tests.
	APIBaseURL string

	Client *http.Client
	Log    *zap.SugaredLogger
	Status status.Reporter
}

func (d *Downloader) client() *http.Client {
	if d.Client != nil {
		return d.Client
	}
	return http.DefaultClient
}

func (d *Downloader) apiBase() string {
	if d.APIBaseURL != "" {
		return d.APIBaseURL
	}
	return defaultAPIBaseURL
}

// InstalledVersion returns the recorded version of a local install, or ""
// when nothing is installed.
func (d *Downloader) InstalledVersion(a Artifact) string {
	data, err := os.ReadFile(a.versionFile())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Ensure makes sure an unpacked copy of the artifact exists locally and
// returns the install directory. When the recorded version and extracted
// contents are present it returns without touching the network; use Update
// to check for newer releases.
func (d *Downloader) Ensure(ctx context.Context, a Artifact) (string, error) {
	if d.installed(a) {
		d.Log.Debugf("%s %s already installed in %s",
			a.DisplayName, d.InstalledVersion(a), a.InstallDir)
		return a.InstallDir, nil
	}

	release, err := d.LatestRelease(ctx, a)
	if err != nil {
		return "", fmt.Errorf("check latest %s release: %w", a.DisplayName, err)
	}

	if err := d.install(ctx, a, release); err != nil {
		return "", err
	}
	return a.InstallDir, nil
}

// Update checks the remote manifest and reinstalls when the recorded local
// version differs from the latest release. It reports whether anything
// changed.
func (d *Downloader) Update(ctx context.Context, a Artifact) (bool, error) {
	release, err := d.LatestRelease(ctx, a)
	if err != nil {
		return false, fmt.Errorf("check latest %s release: %w", a.DisplayName, err)
	}

	if d.installed(a) && d.InstalledVersion(a) == release.TagName {
		return false, nil
	}

	if err := d.install(ctx, a, release); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Downloader) installed(a Artifact) bool {
	if d.InstalledVersion(a) == "" {
		return false
	}
	info, err := os.Stat(filepath.Join(a.InstallDir, a.ExtractedDir))
	return err == nil && info.IsDir()
}

// LatestRelease fetches the release manifest for the artifact's repository.
func (d *Downloader) LatestRelease(ctx context.Context, a Artifact) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", d.apiBase(), a.Repo)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release manifest: HTTP %d", resp.StatusCode)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	return &release, nil
}

// install downloads the asset and replaces any previous extracted contents.
func (d *Downloader) install(ctx context.Context, a Artifact, release *Release) error {
	var downloadURL string
	for _, asset := range release.Assets {
		if asset.Name == a.AssetName {
			downloadURL = asset.DownloadURL
			break
		}
	}
	if downloadURL == "" {
		return fmt.Errorf("release %s has no asset %q", release.TagName, a.AssetName)
	}

	d.Status.Begin(fmt.Sprintf("Downloading %s %s", a.DisplayName, release.TagName))
	defer d.Status.End()

	archive, err := d.download(ctx, downloadURL)
	if err != nil {
		return fmt.Errorf("download %s: %w", a.AssetName, err)
	}
	defer os.Remove(archive)

	d.Status.Report("extracting")

	// Replace the prior install before unpacking so a failed extraction
	// never leaves stale and fresh files mixed together.
	if err := os.RemoveAll(filepath.Join(a.InstallDir, a.ExtractedDir)); err != nil {
		return fmt.Errorf("remove previous install: %w", err)
	}
	if err := extractZip(archive, a.InstallDir); err != nil {
		return fmt.Errorf("extract %s: %w", a.AssetName, err)
	}

	if runtime.GOOS != "windows" {
		markExecutable(filepath.Join(a.InstallDir, a.ExtractedDir, "bin"))
	}

	if err := os.WriteFile(a.versionFile(), []byte(release.TagName+"\n"), 0o644); err != nil {
		return fmt.Errorf("record version: %w", err)
	}

	d.Log.Infof("installed %s %s into %s", a.DisplayName, release.TagName, a.InstallDir)
	return nil
}

func (d *Downloader) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := d.client().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "kotlin-bridge-download-*")
	if err != nil {
		return "", err
	}
	defer tmp.Close()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

// extractZip unpacks the archive into dir, refusing entries that would
// escape it.
func extractZip(archive, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for _, f := range r.File {
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes install dir: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		src, err := f.Open()
		if err != nil {
			return err
		}

		dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode().Perm()|0o600)
		if err != nil {
			src.Close()
			return err
		}

		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// markExecutable sets the executable bit on every file in dir, best effort.
// Zip archives built on Windows routinely drop Unix permission bits.
func markExecutable(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			os.Chmod(filepath.Join(dir, e.Name()), 0o755)
		}
	}
}
