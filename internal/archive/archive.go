// Package archive keeps copies of received payloads and sent-task exports outside
// the database, on local disk or in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"meetingrelay/internal/domain"
)

// Destination stores a named blob.
type Destination interface {
	Write(ctx context.Context, name string, data []byte) error
}

// PayloadName is the archive file name for a payload received at t, with
// millisecond precision.
func PayloadName(t time.Time) string {
	return fmt.Sprintf("payload_%s_%03d.json", t.Format("20060102_150405"), t.Nanosecond()/int(time.Millisecond))
}

// WritePayload stores an indented copy of the payload body and returns its name.
func WritePayload(ctx context.Context, dest Destination, p domain.RawPayload) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, p.Body, "", "  "); err != nil {
		return "", fmt.Errorf("indent payload: %w", err)
	}
	buf.WriteByte('\n')
	name := PayloadName(p.ReceivedAt)
	if err := dest.Write(ctx, name, buf.Bytes()); err != nil {
		return "", err
	}
	return name, nil
}

// DirDestination writes files under a local directory, creating it on demand.
type DirDestination struct {
	Dir string
}

func (d DirDestination) Write(_ context.Context, name string, data []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(d.Dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
