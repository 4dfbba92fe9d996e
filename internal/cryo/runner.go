// Package cryo invokes the cryo extraction binary: one subprocess per fetch,
// manifest-driven discovery of the files each run produced, and parsing of
// the binary's dataset help output.
package cryo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cryomcp/internal/blockrange"
	"cryomcp/internal/errors"
)

// SampleTimeout bounds schema-sample extractions. Primary fetches run
// unbounded; only the sample path gets a ceiling.
const SampleTimeout = 30 * time.Second

// Runner invokes the extraction binary against one RPC endpoint and one
// data root.
type Runner struct {
	binary  string
	rpcURL  string
	dataDir string
	logger  *slog.Logger
}

// NewRunner creates a runner. binary is resolved through PATH unless it is
// an explicit path.
func NewRunner(binary, rpcURL, dataDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		binary:  binary,
		rpcURL:  rpcURL,
		dataDir: dataDir,
		logger:  logger,
	}
}

// FetchRequest describes one extraction run.
type FetchRequest struct {
	Dataset string
	Range   blockrange.Range

	// Contract filters rows by address. The flag it rides under is
	// dataset-dependent, see filterFlag.
	Contract string

	// OutputFormat selects json or csv; empty or "parquet" uses the
	// binary's native parquet output.
	OutputFormat string

	IncludeColumns []string
	ExcludeColumns []string
}

// FetchResult lists the files one extraction run produced.
type FetchResult struct {
	Files  []string `json:"files"`
	Count  int      `json:"count"`
	Format string   `json:"format"`
}

// Fetch runs one extraction and resolves the files it wrote. Latest-range
// requests land in the ephemeral latest directory, purged of same-dataset
// files first so stale runs never mix with fresh ones.
func (r *Runner) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	return r.fetch(ctx, req, 0)
}

// Sample fetches a small JSON sample of a dataset for schema discovery,
// bounded by SampleTimeout.
func (r *Runner) Sample(ctx context.Context, dataset string, rng blockrange.Range) (*FetchResult, error) {
	return r.fetch(ctx, FetchRequest{
		Dataset:      dataset,
		Range:        rng,
		OutputFormat: "json",
	}, SampleTimeout)
}

func (r *Runner) fetch(ctx context.Context, req FetchRequest, timeout time.Duration) (*FetchResult, error) {
	format := req.OutputFormat
	if format == "" {
		format = "parquet"
	}

	outDir := req.Range.OutputDir(r.dataDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if req.Range.IsLatest {
		r.purgeLatest(outDir, req.Dataset)
	}

	args := buildArgs(req, r.rpcURL, outDir)
	command := r.commandLine(args)

	stdout, stderr, err := r.run(ctx, args, timeout)
	if err != nil {
		return nil, errors.NewExtractionError(command, stderr, stdout, err)
	}

	files, found := manifestFiles(filepath.Join(outDir, ".cryo", "reports"))
	if !found {
		files = globOutputs(outDir, req.Dataset, format)
	}
	if len(files) == 0 {
		return nil, errors.New(errors.NoOutputGenerated, "no output files generated", nil).
			WithDetails(&errors.ExtractionDetails{Command: command})
	}

	r.logger.Info("Extraction complete", "dataset", req.Dataset, "range", req.Range.Text, "files", len(files))
	return &FetchResult{Files: files, Count: len(files), Format: format}, nil
}

// buildArgs constructs the argv for one run, binary excluded.
func buildArgs(req FetchRequest, rpcURL, outDir string) []string {
	args := []string{req.Dataset, "-r", rpcURL, "-b", req.Range.Text}

	if req.Contract != "" {
		args = append(args, filterFlag(req.Dataset), req.Contract)
	}

	switch req.OutputFormat {
	case "json":
		args = append(args, "--json")
	case "csv":
		args = append(args, "--csv")
	}

	if len(req.IncludeColumns) > 0 {
		args = append(args, "--include-columns")
		args = append(args, req.IncludeColumns...)
	}
	if len(req.ExcludeColumns) > 0 {
		args = append(args, "--exclude-columns")
		args = append(args, req.ExcludeColumns...)
	}

	return append(args, "-o", outDir)
}

// filterFlag maps a dataset to its address-filter flag. The binary filters
// most datasets with --contract but transactions by recipient under
// --to-address; a uniform flag would silently fetch the wrong rows.
func filterFlag(dataset string) string {
	if dataset == "transactions" {
		return "--to-address"
	}
	return "--contract"
}

// run executes the binary with args, capturing both streams. Zero timeout
// means unbounded.
func (r *Runner) run(ctx context.Context, args []string, timeout time.Duration) (string, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running extraction command", "command", r.commandLine(args))
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func (r *Runner) commandLine(args []string) string {
	return strings.Join(append([]string{r.binary}, args...), " ")
}

// purgeLatest removes stale same-dataset files before a latest re-fetch.
// Removal failures are logged and ignored; a leftover file only means the
// caller may see one stale result alongside fresh ones.
func (r *Runner) purgeLatest(dir, dataset string) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+dataset+"*.*"))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			r.logger.Warn("Could not remove stale latest file", "path", path, "error", err)
			continue
		}
		r.logger.Debug("Removed stale latest file", "path", path)
	}
}

// manifestFiles reads the newest run report under reportDir and returns its
// completed paths. found is false when no report exists or the report lacks
// the completed_paths field, in which case the caller falls back to a glob.
func manifestFiles(reportDir string) ([]string, bool) {
	entries, err := filepath.Glob(filepath.Join(reportDir, "*.json"))
	if err != nil || len(entries) == 0 {
		return nil, false
	}

	var newest string
	var newestMod time.Time
	for _, path := range entries {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = path
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return nil, false
	}

	data, err := os.ReadFile(newest)
	if err != nil {
		return nil, false
	}
	var report struct {
		Results struct {
			CompletedPaths []string `json:"completed_paths"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false
	}
	if report.Results.CompletedPaths == nil {
		return nil, false
	}
	return report.Results.CompletedPaths, true
}

// globOutputs is the manifest fallback: any file in outDir naming the
// dataset with the requested extension.
func globOutputs(outDir, dataset, format string) []string {
	matches, err := filepath.Glob(filepath.Join(outDir, "*"+dataset+"*."+format))
	if err != nil {
		return nil
	}
	return matches
}

// Datasets lists the dataset names the binary supports by parsing its
// `help datasets` output.
func (r *Runner) Datasets(ctx context.Context) ([]string, error) {
	args := []string{"help", "datasets", "-r", r.rpcURL}
	stdout, stderr, err := r.run(ctx, args, 0)
	if err != nil {
		return nil, errors.NewExtractionError(r.commandLine(args), stderr, stdout, err)
	}
	return parseDatasetList(stdout), nil
}

// parseDatasetList pulls dataset names out of `help datasets` output.
// Entries look like "- name" or "- name (alias ...)". The
// blocks_and_transactions group entry is not a fetchable dataset, and the
// "dataset group names" heading starts the alias section, which is skipped.
func parseDatasetList(out string) []string {
	var datasets []string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "- ") && !strings.HasPrefix(line, "- blocks_and_transactions:") {
			name := strings.TrimSpace(strings.SplitN(line[2:], " (alias", 2)[0])
			datasets = append(datasets, name)
		}
		if line == "dataset group names" {
			break
		}
	}
	return datasets
}

// DatasetHelp returns the binary's help text for one dataset. The binary
// emits usable text even for odd names, so a non-zero exit still returns
// whatever came out on stdout.
func (r *Runner) DatasetHelp(ctx context.Context, dataset string) (string, error) {
	args := []string{"help", dataset, "-r", r.rpcURL}
	stdout, stderr, err := r.run(ctx, args, 0)
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return stdout, nil
		}
		return "", errors.NewExtractionError(r.commandLine(args), stderr, stdout, err)
	}
	return stdout, nil
}

// DryRunSchema reports the schema text a dataset fetch would produce,
// via the binary's --dry-run mode.
func (r *Runner) DryRunSchema(ctx context.Context, dataset string) (string, error) {
	args := []string{dataset, "--dry-run", "-r", r.rpcURL}
	stdout, stderr, err := r.run(ctx, args, 0)
	if err != nil {
		return "", errors.NewExtractionError(r.commandLine(args), stderr, stdout, err)
	}
	return stdout, nil
}
