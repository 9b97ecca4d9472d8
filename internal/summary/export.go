package summary

import (
	"context"
	"time"

	"go.uber.org/zap"

	"formsummary/internal/criteria"
	"formsummary/internal/csvexport"
	"formsummary/internal/metrics"
)

// Artifact describes a written CSV file.
type Artifact struct {
	Path   string
	Rows   int
	Bytes  int
	Digest string
}

// Table selects the working set for c and builds its export table, with the
// instanceID column.
func (p *Pipeline) Table(ctx context.Context, c criteria.Criteria) (csvexport.Table, WorkingSet, error) {
	ws, err := p.Select(ctx, c)
	if err != nil {
		return csvexport.Table{}, WorkingSet{}, err
	}
	return csvexport.ToTable(ws.Instances, csvexport.InstanceID), ws, nil
}

// Export writes the working set for c into dir under a fresh name
// ({displayName}__{yyyyMMddHHmmss}.csv, or "name (n).csv" when taken). An
// empty working set writes nothing and returns ErrNoData.
func (p *Pipeline) Export(ctx context.Context, c criteria.Criteria, dir string) (Artifact, error) {
	return p.write(ctx, c, metrics.DestDownload, func(base string, data []byte) (string, error) {
		return csvexport.WriteUnique(dir, base, csvexport.Extension, data)
	})
}

// Share writes the working set for c into dir under the exact generated name,
// replacing an older file of that name. An empty working set returns
// ErrNoData.
func (p *Pipeline) Share(ctx context.Context, c criteria.Criteria, dir string) (Artifact, error) {
	return p.write(ctx, c, metrics.DestShare, func(base string, data []byte) (string, error) {
		return csvexport.WriteReplacing(dir, base+"."+csvexport.Extension, data)
	})
}

func (p *Pipeline) write(ctx context.Context, c criteria.Criteria, dest string, put func(base string, data []byte) (string, error)) (Artifact, error) {
	start := time.Now()
	step := "export_" + dest

	tbl, ws, err := p.Table(ctx, c)
	if err != nil {
		metrics.RecordStep(step, metrics.StatusError, start)
		return Artifact{}, err
	}
	if ws.Empty() {
		metrics.RecordStep(step, metrics.StatusEmpty, start)
		return Artifact{}, ErrNoData
	}

	data := tbl.Bytes()
	base := csvexport.BaseName(ws.DisplayName("export"), p.now().In(p.cal.Location()))
	path, err := put(base, data)
	if err != nil {
		metrics.RecordStep(step, metrics.StatusError, start)
		return Artifact{}, wrap("write csv", err)
	}

	art := Artifact{Path: path, Rows: len(tbl.Rows), Bytes: len(data), Digest: tbl.Digest()}
	metrics.RecordRecords(metrics.KindExported, art.Rows)
	metrics.RecordExport(dest, art.Bytes)
	metrics.RecordStep(step, metrics.StatusOK, start)

	p.log.Info("csv written",
		zap.String("destination", dest),
		zap.String("path", art.Path),
		zap.Int("rows", art.Rows),
		zap.Int("columns", len(tbl.Columns)),
		zap.String("sha256", art.Digest),
	)
	return art, nil
}
