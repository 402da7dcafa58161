package umls

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/pool"
)

// DefaultProgressEvery is the number of rows between progress logs.
const DefaultProgressEvery = 1_000_000

// maxLine bounds a single RRF row.
const maxLine = 1 << 20

// ErrMalformedRow is wrapped by ParseAtom errors.
var ErrMalformedRow = errors.New("malformed row")

// ParseAtom splits one MRCONSO.RRF row.
func ParseAtom(line string) (Atom, error) {
	buf := pool.AcquireFields()
	defer pool.ReleaseFields(buf)
	fields := pool.Split(buf, line, '|')
	if len(fields) < minConsoFields {
		return Atom{}, fmt.Errorf("%w: %d fields, want at least %d", ErrMalformedRow, len(fields), minConsoFields)
	}
	a := Atom{
		CUI:      fields[colCUI],
		AUI:      fields[colAUI],
		TS:       fields[colTS],
		STT:      fields[colSTT],
		SAB:      fields[colSAB],
		TTY:      fields[colTTY],
		Code:     fields[colCODE],
		Str:      fields[colSTR],
		Suppress: fields[colSUPPRESS],
	}
	if a.SAB == "" {
		return Atom{}, fmt.Errorf("%w: empty source tag", ErrMalformedRow)
	}
	return a, nil
}

// Stats summarizes one ingestion run.
type Stats struct {
	Lines      int
	Written    int
	Excluded   int
	Duplicates int
	Malformed  int

	// ExcludedSources counts rows per source tag that has no rule.
	ExcludedSources map[string]int

	// Systems counts written codes per system URL.
	Systems map[string]int
}

// TopExcluded returns the excluded source tags, most frequent first.
func (s *Stats) TopExcluded() []string {
	out := make([]string, 0, len(s.ExcludedSources))
	for sab := range s.ExcludedSources {
		out = append(out, sab)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := s.ExcludedSources[out[i]], s.ExcludedSources[out[j]]
		if ci != cj {
			return ci > cj
		}
		return out[i] < out[j]
	})
	return out
}

// Processor turns MRCONSO rows into normalized vocabulary lines.
type Processor struct {
	rules         *RuleSet
	progressEvery int
	log           zerolog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRules replaces the default rule set.
func WithRules(rs *RuleSet) ProcessorOption {
	return func(p *Processor) { p.rules = rs }
}

// WithProgressEvery sets the progress log interval in rows.
func WithProgressEvery(n int) ProcessorOption {
	return func(p *Processor) { p.progressEvery = n }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) ProcessorOption {
	return func(p *Processor) { p.log = log }
}

// NewProcessor creates a processor with the default rules.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		rules:         NewRuleSet(nil, nil),
		progressEvery: DefaultProgressEvery,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process streams rows from r and writes one "system|code|description"
// line per kept code to w. The first kept description of a code wins.
// Malformed and overlong rows are logged and skipped; only I/O errors and
// context cancellation stop the run. Output written before a failure is
// flushed to w.
func (p *Processor) Process(ctx context.Context, r io.Reader, w io.Writer) (stats *Stats, err error) {
	stats = &Stats{
		ExcludedSources: make(map[string]int),
		Systems:         make(map[string]int),
	}
	seen := make(map[string]struct{})

	out := bufio.NewWriterSize(w, 256*1024)
	defer func() {
		if ferr := out.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("write output: %w", ferr)
		}
	}()

	rows := newRowReader(r)
	for {
		line, rerr := rows.Next()
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil && !errors.Is(rerr, ErrMalformedRow) {
			return stats, fmt.Errorf("read MRCONSO at line %d: %w", rows.Line()+1, rerr)
		}
		stats.Lines++
		if stats.Lines%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		if p.progressEvery > 0 && stats.Lines%p.progressEvery == 0 {
			p.log.Info().Int("lines", stats.Lines).Int("written", stats.Written).Msg("processing MRCONSO")
		}
		if rerr != nil {
			stats.Malformed++
			p.log.Warn().Err(rerr).Int("line", rows.Line()).Msg("skipping row")
			continue
		}

		atom, err := ParseAtom(line)
		if err != nil {
			stats.Malformed++
			p.log.Warn().Err(err).Int("line", rows.Line()).Str("row", line).Msg("skipping row")
			continue
		}

		system, keep, known := p.rules.Apply(atom)
		if !known {
			stats.Excluded++
			stats.ExcludedSources[atom.SAB]++
			continue
		}
		if !keep {
			stats.Excluded++
			continue
		}

		key := system + "|" + atom.Code
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}

		if _, err := fmt.Fprintf(out, "%s|%s|%s\n", system, atom.Code, atom.Str); err != nil {
			return stats, fmt.Errorf("write output: %w", err)
		}
		stats.Written++
		stats.Systems[system]++
	}

	p.log.Info().
		Int("lines", stats.Lines).
		Int("written", stats.Written).
		Int("excluded", stats.Excluded).
		Int("malformed", stats.Malformed).
		Strs("excluded_sources", stats.TopExcluded()).
		Msg("MRCONSO processed")
	return stats, nil
}
