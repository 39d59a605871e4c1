package jobmanager

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bobmcallan/rollup/internal/interfaces"
	"github.com/bobmcallan/rollup/internal/models"
)

// SliceSource serves records already held in memory.
type SliceSource struct {
	records []*models.RiskStatRecord
	label   string
	pos     int
}

// NewSliceSource wraps records. label is recorded on the job.
func NewSliceSource(records []*models.RiskStatRecord, label string) *SliceSource {
	if label == "" {
		label = fmt.Sprintf("%d records", len(records))
	}
	return &SliceSource{records: records, label: label}
}

func (s *SliceSource) Len() int         { return len(s.records) }
func (s *SliceSource) Describe() string { return s.label }

func (s *SliceSource) Next(ctx context.Context) (*models.RiskStatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	if rec == nil {
		return nil, errors.New("nil record")
	}
	return rec, nil
}

// CSV columns understood by CSVSource. Column order is taken from the header
// row; unknown columns are ignored.
const (
	ColTicker     = "ticker"
	ColAssetClass = "asset_class"
	ColVolatility = "volatility"
	ColBeta       = "beta"
	ColDuration   = "duration"
	ColBetaToGold = "beta_to_gold"
	ColAsOfDate   = "as_of_date"
)

// CSVSource streams records from CSV with a header row. Its length is unknown
// upfront, so jobs reading it report indeterminate progress.
type CSVSource struct {
	r      *csv.Reader
	label  string
	cols   map[string]int
	header bool
}

// NewCSVSource reads CSV from r. label is recorded on the job.
func NewCSVSource(r io.Reader, label string) *CSVSource {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	if label == "" {
		label = "csv"
	}
	return &CSVSource{r: cr, label: label}
}

func (s *CSVSource) Len() int         { return -1 }
func (s *CSVSource) Describe() string { return s.label }

func (s *CSVSource) Next(ctx context.Context) (*models.RiskStatRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.header {
		if err := s.readHeader(); err != nil {
			return nil, err
		}
	}

	fields, err := s.r.Read()
	if err != nil {
		return nil, err
	}
	line, _ := s.r.FieldPos(0)

	rec := &models.RiskStatRecord{
		Ticker:     s.field(fields, ColTicker),
		AssetClass: s.field(fields, ColAssetClass),
	}
	if rec.AsOf, err = models.ParseDate(s.field(fields, ColAsOfDate)); err != nil {
		return nil, fmt.Errorf("line %d: %w", line, err)
	}
	for col, dst := range map[string]**float64{
		ColVolatility: &rec.Volatility,
		ColBeta:       &rec.Beta,
		ColDuration:   &rec.Duration,
		ColBetaToGold: &rec.BetaToGold,
	} {
		v, err := s.float(fields, col)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		*dst = v
	}
	return rec, nil
}

func (s *CSVSource) readHeader() error {
	fields, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("read csv header: %w", err)
	}
	s.cols = make(map[string]int, len(fields))
	for i, name := range fields {
		s.cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{ColTicker, ColAsOfDate} {
		if _, ok := s.cols[required]; !ok {
			return fmt.Errorf("csv header is missing column %q", required)
		}
	}
	s.header = true
	return nil
}

func (s *CSVSource) field(fields []string, col string) string {
	i, ok := s.cols[col]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

// float returns nil for an absent or empty cell.
func (s *CSVSource) float(fields []string, col string) (*float64, error) {
	raw := s.field(fields, col)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("column %s: invalid number %q", col, raw)
	}
	return &v, nil
}

var (
	_ interfaces.RiskStatSource = (*SliceSource)(nil)
	_ interfaces.RiskStatSource = (*CSVSource)(nil)
)
