package s3blob

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/alanyoungcy/memebot/internal/domain"
)

// SnapshotArchiver copies every persisted portfolio document to object
// storage. Each upload adds an immutable history entry keyed by the
// document's updated_at and then overwrites latest.json.
type SnapshotArchiver struct {
	writer domain.ObjectWriter
	prefix string
}

// NewSnapshotArchiver creates a SnapshotArchiver writing under prefix.
func NewSnapshotArchiver(writer domain.ObjectWriter, prefix string) *SnapshotArchiver {
	return &SnapshotArchiver{writer: writer, prefix: prefix}
}

// Archive uploads doc.
func (a *SnapshotArchiver) Archive(ctx context.Context, doc domain.PortfolioDocument) error {
	buf, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	tags := map[string]string{
		"open":       strconv.Itoa(len(doc.Open)),
		"closed":     strconv.Itoa(len(doc.Closed)),
		"updated-at": doc.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	history := domain.ObjectMeta{ContentType: "application/json", Tags: tags}
	if err := a.writer.Upload(ctx, historyPath(a.prefix, doc.UpdatedAt), buf, history); err != nil {
		return fmt.Errorf("s3blob: archive: %w", err)
	}
	latest := domain.ObjectMeta{ContentType: "application/json", CacheControl: "no-cache", Tags: tags}
	if err := a.writer.Upload(ctx, latestPath(a.prefix), buf, latest); err != nil {
		return fmt.Errorf("s3blob: archive: %w", err)
	}
	return nil
}

// historyPath partitions snapshots by month.
//
//	snapshots/portfolio/2026-03/20260301T120000.000Z.json
func historyPath(prefix string, at time.Time) string {
	at = at.UTC()
	return path.Join(prefix, "portfolio", at.Format("2006-01"), at.Format("20060102T150405.000Z")+".json")
}

func latestPath(prefix string) string {
	return path.Join(prefix, "portfolio", "latest.json")
}
