package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"meetingrelay/internal/domain"
	"meetingrelay/internal/store"
)

type header struct {
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type record struct {
	Type string                `json:"type"`
	Data domain.SentTaskRecord `json:"data"`
}

// ExportName is the file name of a sent-task export taken at t.
func ExportName(t time.Time) string {
	return "sent_tasks_" + t.UTC().Format("20060102_150405") + ".jsonl"
}

// ExportJSONL writes a header line followed by every sent-task record in
// insertion order. It returns the number of records written.
func ExportJSONL(ctx context.Context, repo store.Repository, w io.Writer, now time.Time) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{Version: "1", Type: "header", Timestamp: now.UTC()}); err != nil {
		return 0, fmt.Errorf("encode header: %w", err)
	}
	n := 0
	err := repo.EachSentTask(ctx, func(rec domain.SentTaskRecord) error {
		if err := enc.Encode(record{Type: "sent_task", Data: rec}); err != nil {
			return fmt.Errorf("encode sent task %s: %w", rec.ID, err)
		}
		n++
		return nil
	})
	return n, err
}

// Export runs ExportJSONL into dest and returns the written name and record count.
func Export(ctx context.Context, repo store.Repository, dest Destination, now time.Time) (string, int, error) {
	var buf bytes.Buffer
	n, err := ExportJSONL(ctx, repo, &buf, now)
	if err != nil {
		return "", 0, err
	}
	name := ExportName(now)
	if err := dest.Write(ctx, name, buf.Bytes()); err != nil {
		return "", 0, err
	}
	return name, n, nil
}
