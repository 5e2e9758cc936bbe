package sqlite

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/recopy/pkg/types"
)

// Export writes every record of model to path, one JSON object per line.
// Has-many children are nested under their relation name without their
// link field, so Import can rebuild the graph under fresh IDs.
// Returns the number of top-level records written.
func (b *Backend) Export(ctx context.Context, model *types.Model, path string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return 0, types.ErrBackendDetached
	}

	g := b.gateway()
	recs, err := g.List(ctx, model)
	if err != nil {
		return 0, err
	}
	lines := make([]json.RawMessage, 0, len(recs))
	for _, rec := range recs {
		doc, err := exportNode(ctx, g, rec, "")
		if err != nil {
			return 0, err
		}
		line, err := json.Marshal(doc)
		if err != nil {
			return 0, fmt.Errorf("encoding %s %d: %w", model.Name, rec.ID, err)
		}
		lines = append(lines, line)
	}
	if err := writeJSONL(path, lines); err != nil {
		return 0, err
	}
	b.logger.Debug("exported records", zap.String("model", model.Name), zap.Int("count", len(lines)))
	return len(lines), nil
}

func exportNode(ctx context.Context, s types.Store, rec *types.Record, linkField string) (map[string]any, error) {
	doc := rec.Map()
	delete(doc, linkField)
	for _, rel := range rec.Model.Relations {
		if rel.Kind != types.HasManyKind {
			continue
		}
		kids, err := s.Children(ctx, rec, rel)
		if err != nil {
			return nil, err
		}
		nested := make([]any, 0, len(kids))
		for _, kid := range kids {
			d, err := exportNode(ctx, s, kid, rel.LinkField)
			if err != nil {
				return nil, err
			}
			nested = append(nested, d)
		}
		doc[rel.Name] = nested
	}
	return doc, nil
}

// Import inserts every line of path as a record of model, with nested
// relations, in a single transaction. IDs in the file are ignored; records
// get fresh IDs. Returns the number of top-level records inserted.
func (b *Backend) Import(ctx context.Context, model *types.Model, path string) (int, error) {
	lines, err := readJSONL(path)
	if err != nil {
		return 0, err
	}
	err = b.Transact(ctx, func(s types.Store) error {
		for i, line := range lines {
			dec := json.NewDecoder(bytes.NewReader(line))
			var data map[string]any
			if err := dec.Decode(&data); err != nil {
				return fmt.Errorf("%w: record %d: %w", types.ErrMalformedRecord, i+1, err)
			}
			if _, err := types.InsertGraph(ctx, s, model, data); err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	b.logger.Debug("imported records", zap.String("model", model.Name), zap.Int("count", len(lines)))
	return len(lines), nil
}

// readJSONL reads a JSONL file and returns each non-empty line as a
// json.RawMessage. A line that is not valid JSON fails with
// ErrMalformedRecord and its line number.
func readJSONL(path string) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var records []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return nil, fmt.Errorf("%w: %s line %d: not valid JSON", types.ErrMalformedRecord, path, n)
		}
		records = append(records, json.RawMessage(bytes.Clone(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning %s: %w", path, err)
	}
	return records, nil
}

// writeJSONL atomically writes records to path using the temp-file, fsync,
// rename pattern.
func writeJSONL(path string, records []json.RawMessage) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jsonl-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(format string, err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf(format, err)
	}

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		if _, err := w.Write(rec); err != nil {
			return fail("writing record: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			return fail("writing newline: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fail("flushing buffer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
