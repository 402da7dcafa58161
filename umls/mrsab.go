package umls

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/pool"
)

// Field positions in MRSAB.RRF.
const (
	sabColRSAB   = 3
	sabColSVER   = 6
	sabColSRL    = 13
	sabColCURVER = 21

	minSabFields = 22
)

// ReadSources parses MRSAB.RRF into restriction metadata keyed by code
// system URL. Sources without a rule are ignored. When several source tags
// map to one system the highest restriction level wins.
func ReadSources(r io.Reader, rules *RuleSet) (artifact.Metadata, error) {
	if rules == nil {
		rules = NewRuleSet(nil, nil)
	}
	md := artifact.Metadata{}
	rows := newRowReader(r)

	buf := pool.AcquireFields()
	defer pool.ReleaseFields(buf)
	for {
		text, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read MRSAB: %w", err)
		}
		line := rows.Line()
		if strings.TrimSpace(text) == "" {
			continue
		}
		fields := pool.Split(buf, text, '|')
		if len(fields) < minSabFields {
			return nil, fmt.Errorf("MRSAB line %d: %w: %d fields", line, ErrMalformedRow, len(fields))
		}
		system, ok := rules.System(fields[sabColRSAB])
		if !ok {
			continue
		}
		level, err := strconv.Atoi(fields[sabColSRL])
		if err != nil {
			return nil, fmt.Errorf("MRSAB line %d: %w: restriction level %q", line, ErrMalformedRow, fields[sabColSRL])
		}

		entry := artifact.SystemMetadata{RestrictionLevel: level}
		if v := fields[sabColSVER]; v != "" && fields[sabColCURVER] == "Y" {
			entry.Versions = []string{v}
		}
		md.Merge(artifact.Metadata{system: entry})
	}
	return md, nil
}
