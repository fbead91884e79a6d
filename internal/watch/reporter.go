package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/plexsphere/pcpmon/internal/fsutil"
)

// JSONLinesReporter writes every record as one JSON line.
type JSONLinesReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesReporter returns a reporter writing to w.
func NewJSONLinesReporter(w io.Writer) *JSONLinesReporter {
	return &JSONLinesReporter{enc: json.NewEncoder(w)}
}

// Report encodes batch to the underlying writer.
func (r *JSONLinesReporter) Report(ctx context.Context, batch []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.enc.Encode(rec); err != nil {
			return fmt.Errorf("watch: write record: %w", err)
		}
	}
	return nil
}

// LatestFileReporter keeps a JSON file holding the newest record of every
// host and kind. The file is replaced atomically on each report.
type LatestFileReporter struct {
	path string
	perm os.FileMode

	mu     sync.Mutex
	latest map[string]Record
}

// NewLatestFileReporter returns a reporter maintaining the file at path.
func NewLatestFileReporter(path string) *LatestFileReporter {
	return &LatestFileReporter{path: path, perm: 0o644, latest: make(map[string]Record)}
}

// Report merges batch into the latest view and rewrites the file.
func (r *LatestFileReporter) Report(_ context.Context, batch []Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range batch {
		key := rec.Host + "/" + rec.Kind
		if prev, ok := r.latest[key]; ok && prev.Timestamp.After(rec.Timestamp) {
			continue
		}
		r.latest[key] = rec
	}

	records := make([]Record, 0, len(r.latest))
	for _, rec := range r.latest {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Host != records[j].Host {
			return records[i].Host < records[j].Host
		}
		return records[i].Kind < records[j].Kind
	})

	if err := fsutil.WriteJSONAtomic(r.path, records, r.perm); err != nil {
		return fmt.Errorf("watch: latest file: %w", err)
	}
	return nil
}

// MultiReporter fans a batch out to several reporters. The first error
// stops the fan-out so the manager retains the batch.
type MultiReporter []Reporter

// Report calls every reporter in order.
func (m MultiReporter) Report(ctx context.Context, batch []Record) error {
	for _, r := range m {
		if err := r.Report(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
