package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferDataset(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"ethereum__blocks__17000000_to_17000100.parquet", "blocks"},
		{"ethereum__transactions__1000_to_1010.parquet", "transactions"},
		{"ethereum__logs__1000_to_1010__extra.parquet", "logs"},
		{"blocks__1000_to_1010.parquet", "blocks"},
		{"logs_export.parquet", "logs"},
		{"my_blocks_data.parquet", "my_blocks"},
		{"snapshot.parquet", "snapshot"},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, InferDataset(tt.filename))
		})
	}
}

func TestInferBlockRange(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"ethereum__blocks__17000000_to_17000100.parquet", "17000000:17000100"},
		{"ethereum__transactions__5_to_10.parquet", "5:10"},
		{"snapshot.parquet", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inferBlockRange(tt.filename), "filename %q", tt.filename)
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stub"), 0o644))
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ethereum__blocks__1000_to_1010.parquet"))
	writeFile(t, filepath.Join(root, "latest", "ethereum__blocks__18000000_to_18000001.parquet"))
	writeFile(t, filepath.Join(root, "notes.txt"))
	writeFile(t, filepath.Join(root, ".cryo", "reports", "run.json"))

	files, err := Scan(root)
	require.NoError(t, err)
	require.Len(t, files, 2)

	byPath := make(map[string]File)
	for _, f := range files {
		byPath[filepath.Base(f.Path)] = f
	}

	historical, ok := byPath["ethereum__blocks__1000_to_1010.parquet"]
	require.True(t, ok, "historical file missing from scan")
	assert.Equal(t, "blocks", historical.Name)
	assert.Equal(t, "1000:1010", historical.BlockRange)
	assert.False(t, historical.IsLatest)
	assert.NotZero(t, historical.SizeBytes)
	assert.False(t, historical.Modified.IsZero())

	latest, ok := byPath["ethereum__blocks__18000000_to_18000001.parquet"]
	require.True(t, ok, "latest file missing from scan")
	assert.True(t, latest.IsLatest)
}

func TestScan_MissingRoot(t *testing.T) {
	files, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestMatchFiles(t *testing.T) {
	tests := []struct {
		name  string
		table string
		pool  []string
		want  []string
	}{
		{
			name:  "exact marker tier",
			table: "blocks",
			pool:  []string{"/data/ethereum__blocks__1000_to_1010.parquet"},
			want:  []string{"/data/ethereum__blocks__1000_to_1010.parquet"},
		},
		{
			name:  "exact marker wins over prefix match",
			table: "blocks",
			pool: []string{
				"/data/blocks_export.parquet",
				"/data/ethereum__blocks__1000_to_1010.parquet",
			},
			want: []string{"/data/ethereum__blocks__1000_to_1010.parquet"},
		},
		{
			name:  "all exact marker hits kept",
			table: "blocks",
			pool: []string{
				"/data/ethereum__blocks__1000_to_1010.parquet",
				"/data/ethereum__blocks__2000_to_2010.parquet",
				"/data/ethereum__transactions__1000_to_1010.parquet",
			},
			want: []string{
				"/data/ethereum__blocks__1000_to_1010.parquet",
				"/data/ethereum__blocks__2000_to_2010.parquet",
			},
		},
		{
			name:  "underscore delimited fallback",
			table: "blocks",
			pool:  []string{"/data/my_blocks_data.parquet"},
			want:  []string{"/data/my_blocks_data.parquet"},
		},
		{
			name:  "basename prefix fallback",
			table: "blocks",
			pool:  []string{"/data/blocks_1000.parquet", "/data/blocks.parquet"},
			want:  []string{"/data/blocks_1000.parquet", "/data/blocks.parquet"},
		},
		{
			name:  "case insensitive",
			table: "BLOCKS",
			pool:  []string{"/data/ETHEREUM__BLOCKS__1000_to_1010.PARQUET"},
			want:  []string{"/data/ETHEREUM__BLOCKS__1000_to_1010.PARQUET"},
		},
		{
			name:  "no hits",
			table: "traces",
			pool:  []string{"/data/ethereum__blocks__1000_to_1010.parquet"},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchFiles(tt.table, tt.pool))
		})
	}
}

// Matching must be deterministic for a fixed pool.
func TestMatchFiles_Idempotent(t *testing.T) {
	pool := []string{
		"/data/ethereum__blocks__1000_to_1010.parquet",
		"/data/ethereum__blocks__2000_to_2010.parquet",
		"/data/latest/ethereum__blocks__18000000_to_18000001.parquet",
	}
	assert.Equal(t, MatchFiles("blocks", pool), MatchFiles("blocks", pool))
}
