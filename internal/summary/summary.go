// Package summary is the pipeline entry point. Every call takes one snapshot
// of the instance store, narrows it to the working set with the given
// criteria and derives its result from that set only. Nothing is retained
// between calls.
package summary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"formsummary/internal/aggregate"
	"formsummary/internal/criteria"
	"formsummary/internal/datenorm"
	"formsummary/internal/instances"
	"formsummary/internal/logging"
	"formsummary/internal/metrics"
	"formsummary/internal/xmlfield"
	"formsummary/pkg/optional"
)

// ErrNoData is returned by Export and Share when the working set is empty.
var ErrNoData = errors.New("no instances match the selection")

// Fields names the instance fields read by the pipeline.
type Fields struct {
	Date     string
	Sum      string
	Distinct string
	ListID   string
}

// DefaultFields are the Collect payment form fields.
func DefaultFields() Fields {
	return Fields{Date: "end", Sum: "montant", Distinct: "hope_id_menage", ListID: "hope_household_id"}
}

// Options configures a Pipeline. Zero values take defaults.
type Options struct {
	Fields   Fields
	Calendar datenorm.Calendar
	Logger   *zap.Logger
	// Now is the export clock.
	Now func() time.Time
}

// Pipeline runs queries against one repository.
type Pipeline struct {
	repo   instances.Repository
	fields Fields
	cal    datenorm.Calendar
	log    *zap.Logger
	now    func() time.Time
}

// New returns a Pipeline over repo.
func New(repo instances.Repository, opts Options) *Pipeline {
	f := opts.Fields
	def := DefaultFields()
	if f.Date == "" {
		f.Date = def.Date
	}
	if f.Sum == "" {
		f.Sum = def.Sum
	}
	if f.Distinct == "" {
		f.Distinct = def.Distinct
	}
	if f.ListID == "" {
		f.ListID = def.ListID
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		repo:   repo,
		fields: f,
		cal:    opts.Calendar,
		log:    logging.OrNop(opts.Logger),
		now:    now,
	}
}

// Calendar is the zone used for day comparison and rendering.
func (p *Pipeline) Calendar() datenorm.Calendar { return p.cal }

// WorkingSet is the snapshot selected for one query.
type WorkingSet struct {
	Criteria  criteria.Criteria
	Instances []instances.Instance
}

// Empty reports whether no instance matched.
func (ws WorkingSet) Empty() bool { return len(ws.Instances) == 0 }

// DisplayName names the working set: the display name of the first instance,
// falling back to its form id. Instances with neither are skipped, and def is
// returned when no instance has a name.
func (ws WorkingSet) DisplayName(def string) string {
	for _, in := range ws.Instances {
		if in.DisplayName != "" {
			return in.DisplayName
		}
		if in.FormID != "" {
			return in.FormID
		}
	}
	return def
}

// Forms lists the distinct forms with finalized instances.
func (p *Pipeline) Forms(ctx context.Context) ([]instances.FormPair, error) {
	all, err := instances.QueryFinalized(ctx, p.repo)
	if err != nil {
		return nil, err
	}
	return instances.FormPairs(all), nil
}

// Select queries the store once and returns the instances matching c.
func (p *Pipeline) Select(ctx context.Context, c criteria.Criteria) (WorkingSet, error) {
	start := time.Now()

	all, err := instances.QueryFinalized(ctx, p.repo)
	if err != nil {
		metrics.RecordStep("select", metrics.StatusError, start)
		return WorkingSet{}, err
	}

	f := criteria.NewFilter(p.cal, p.log)
	f.DateField = p.fields.Date
	selected := f.Select(all, c)

	metrics.RecordRecords(metrics.KindCandidate, len(all))
	metrics.RecordRecords(metrics.KindSelected, len(selected))
	status := metrics.StatusOK
	if len(selected) == 0 {
		status = metrics.StatusEmpty
	}
	metrics.RecordStep("select", status, start)

	p.log.Debug("working set selected",
		zap.Int("candidates", len(all)),
		zap.Int("selected", len(selected)),
		zap.Bool("unconstrained", c.IsEmpty()),
	)
	return WorkingSet{Criteria: c, Instances: selected}, nil
}

// Row is one line of the instance list.
type Row struct {
	Instance instances.Instance
	End      optional.Value[time.Time]
	ListID   string
	Amount   optional.Value[float64]
}

// Report is the summary view of one working set.
type Report struct {
	FormName string
	Criteria criteria.Criteria
	Result   aggregate.Result
	Rows     []Row
}

// Summarise selects the working set for c and aggregates it.
func (p *Pipeline) Summarise(ctx context.Context, c criteria.Criteria) (Report, error) {
	ws, err := p.Select(ctx, c)
	if err != nil {
		return Report{}, err
	}
	return p.report(ws), nil
}

func (p *Pipeline) report(ws WorkingSet) Report {
	start := time.Now()
	res := aggregate.Summariser{SumField: p.fields.Sum, DistinctField: p.fields.Distinct}.Summarise(ws.Instances)
	rows := p.rows(ws)
	metrics.RecordStep("summarise", metrics.StatusOK, start)

	return Report{
		FormName: ws.DisplayName("default"),
		Criteria: ws.Criteria,
		Result:   res,
		Rows:     rows,
	}
}

// List selects the working set for c and returns its rows, newest first.
func (p *Pipeline) List(ctx context.Context, c criteria.Criteria) ([]Row, error) {
	ws, err := p.Select(ctx, c)
	if err != nil {
		return nil, err
	}
	return p.rows(ws), nil
}

// rows reads each document once. Rows are ordered by finalization time,
// newest first; rows without a parsable time sort last in input order.
func (p *Pipeline) rows(ws WorkingSet) []Row {
	out := make([]Row, 0, len(ws.Instances))
	unreadable := 0
	for _, in := range ws.Instances {
		r := Row{Instance: in}
		doc, err := xmlfield.Load(in.FilePath)
		if err != nil {
			unreadable++
			p.log.Debug("instance unreadable", zap.String("path", in.FilePath), zap.Error(err))
			out = append(out, r)
			continue
		}
		r.End = optional.FlatMap(doc.Field(p.fields.Date), datenorm.ParseInstant)
		r.ListID = doc.Field(p.fields.ListID).OrElse("")
		r.Amount = optional.FlatMap(doc.Field(p.fields.Sum), aggregate.ParseDecimal)
		out = append(out, r)
	}
	metrics.RecordRecords(metrics.KindUnreadable, unreadable)

	sort.SliceStable(out, func(i, j int) bool {
		ei, iok := out[i].End.Get()
		ej, jok := out[j].End.Get()
		switch {
		case iok && jok:
			return ei.After(ej)
		default:
			return iok && !jok
		}
	})
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
