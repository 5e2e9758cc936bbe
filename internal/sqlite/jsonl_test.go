package sqlite

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/recopy/internal/fixture"
	"github.com/mesh-intelligence/recopy/pkg/types"
)

func TestReadWriteJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")
	records := []json.RawMessage{
		json.RawMessage(`{"a":1}`),
		json.RawMessage(`{"b":"two"}`),
	}
	require.NoError(t, writeJSONL(path, records))

	got, err := readJSONL(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.JSONEq(t, `{"a":1}`, string(got[0]))
	assert.JSONEq(t, `{"b":"two"}`, string(got[1]))
}

func TestReadJSONL_SkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")
	content := "{\"a\":1}\n\n  \n{\"b\":2}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := readJSONL(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestReadJSONL_RejectsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.jsonl")
	content := "{\"a\":1}\n\nnot json\n{\"b\":2}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := readJSONL(path)
	assert.ErrorIs(t, err, types.ErrMalformedRecord)
	assert.ErrorContains(t, err, "line 3")
}

func TestImport_MalformedFileInsertsNothing(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()
	quote, err := b.Registry().Model(fixture.Quote)
	require.NoError(t, err)

	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", "{\"ref\": \"q1\"}\n{\"ref\": \n"},
		{"not an object", "{\"ref\": \"q1\"}\n[1, 2]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "quotes.jsonl")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			n, err := b.Import(ctx, quote, path)
			assert.ErrorIs(t, err, types.ErrMalformedRecord)
			assert.Zero(t, n)

			recs, err := b.List(ctx, quote)
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestReadJSONL_MissingFile(t *testing.T) {
	_, err := readJSONL(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

func TestWriteJSONL_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeJSONL(filepath.Join(dir, "out.jsonl"), nil))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.jsonl", entries[0].Name())
}

func TestExportImport_RoundTrip(t *testing.T) {
	src := setupBackend(t)
	insertQuote(t, src, "q1", fixture.Line("tools", 5, 10), fixture.Line("work", 1, 40))
	insertQuote(t, src, "q2", fixture.Line("tools", 3, 15), fixture.Line("work", 2, 35))

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "quotes.jsonl")
	n, err := src.Export(ctx, model(t, src, fixture.Quote), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lines, err := readJSONL(path)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, "q1", first["ref"])
	require.Len(t, first[fixture.Lines], 2)
	assert.NotContains(t, first[fixture.Lines].([]any)[0], "parent_id")

	dst := setupBackend(t)
	n, err = dst.Import(ctx, model(t, dst, fixture.Quote), path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	quotes, err := dst.List(ctx, model(t, dst, fixture.Quote))
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "q1", quotes[0].String("ref"))
	assert.InDelta(t, 90.0, quotes[0].Float("total"), 0.001)
	assert.Equal(t, "q2", quotes[1].String("ref"))
	assert.InDelta(t, 115.0, quotes[1].Float("total"), 0.001)
}

func TestImport_FailureInsertsNothing(t *testing.T) {
	b := setupBackend(t)
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	content := `{"ref":"ok"}` + "\n" + `{"ref":"bad","Lines":[{"qty":"many"}]}` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ctx := context.Background()
	quote := model(t, b, fixture.Quote)
	_, err := b.Import(ctx, quote, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTypeMismatch)

	recs, err := b.List(ctx, quote)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
