package umls

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/pool"
)

// Field positions in MRREL.RRF.
const (
	relColAUI1   = 1
	relColSTYPE1 = 2
	relColREL    = 3
	relColAUI2   = 5
	relColSTYPE2 = 6
	relColSAB    = 10

	minRelFields = 11
)

const schema = `
CREATE TABLE IF NOT EXISTS umls_atoms (
	aui    TEXT PRIMARY KEY,
	sab    TEXT NOT NULL,
	system TEXT NOT NULL,
	code   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS umls_atoms_system_code ON umls_atoms (system, code);
CREATE TABLE IF NOT EXISTS umls_relations (
	parent_aui TEXT NOT NULL,
	child_aui  TEXT NOT NULL,
	sab        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS umls_relations_parent ON umls_relations (parent_aui);
`

const descendantsQuery = `
WITH RECURSIVE tree(aui) AS (
	SELECT aui FROM umls_atoms WHERE system = $1 AND code = $2
	UNION
	SELECT r.child_aui FROM umls_relations r JOIN tree t ON r.parent_aui = t.aui
)
SELECT DISTINCT a.code
FROM umls_atoms a JOIN tree t ON a.aui = t.aui
WHERE a.system = $1 AND a.code <> $2
ORDER BY a.code`

// Store stages UMLS atoms and parent/child relations in PostgreSQL so
// is-a filters over UMLS vocabularies can be answered.
type Store struct {
	db    *sqlx.DB
	rules *RuleSet
	log   zerolog.Logger
}

// Connect opens a store on a PostgreSQL URL.
func Connect(ctx context.Context, dsn string, rules *RuleSet, log zerolog.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect UMLS store: %w", err)
	}
	return NewStore(db, rules, log), nil
}

// NewStore wraps an open database handle. The caller keeps ownership of db
// unless Close is called.
func NewStore(db *sqlx.DB, rules *RuleSet, log zerolog.Logger) *Store {
	if rules == nil {
		rules = NewRuleSet(nil, nil)
	}
	return &Store{db: db, rules: rules, log: log}
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the tables if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate UMLS store: %w", err)
	}
	return nil
}

// Truncate empties the tables.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `TRUNCATE umls_atoms, umls_relations`)
	return err
}

// ImportAtoms bulk loads MRCONSO rows for vocabularies that have a rule.
// Suppressed atoms are kept since they still take part in the hierarchy.
func (s *Store) ImportAtoms(ctx context.Context, r io.Reader) (int, error) {
	return s.copyIn(ctx, "umls_atoms", []string{"aui", "sab", "system", "code"}, r, func(line string) ([]interface{}, bool) {
		a, err := ParseAtom(line)
		if err != nil || a.AUI == "" || a.Code == "" {
			return nil, false
		}
		system, ok := s.rules.System(a.SAB)
		if !ok {
			return nil, false
		}
		return []interface{}{a.AUI, a.SAB, system, a.Code}, true
	})
}

// ImportRelations bulk loads the atom-level CHD rows of MRREL.
func (s *Store) ImportRelations(ctx context.Context, r io.Reader) (int, error) {
	buf := pool.AcquireFields()
	defer pool.ReleaseFields(buf)
	return s.copyIn(ctx, "umls_relations", []string{"parent_aui", "child_aui", "sab"}, r, func(line string) ([]interface{}, bool) {
		f := pool.Split(buf, line, '|')
		if len(f) < minRelFields || f[relColREL] != "CHD" {
			return nil, false
		}
		if f[relColSTYPE1] != "AUI" || f[relColSTYPE2] != "AUI" {
			return nil, false
		}
		if _, ok := s.rules.System(f[relColSAB]); !ok {
			return nil, false
		}
		return []interface{}{f[relColAUI1], f[relColAUI2], f[relColSAB]}, true
	})
}

func (s *Store) copyIn(ctx context.Context, table string, columns []string, r io.Reader, row func(string) ([]interface{}, bool)) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PreparexContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return 0, fmt.Errorf("prepare copy into %s: %w", table, err)
	}

	rows := newRowReader(r)
	n, skipped := 0, 0
	for {
		line, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrMalformedRow) {
			skipped++
			s.log.Warn().Err(err).Str("table", table).Int("line", rows.Line()).Msg("skipping row")
			continue
		}
		if err != nil {
			stmt.Close()
			return n, fmt.Errorf("read rows for %s at line %d: %w", table, rows.Line()+1, err)
		}
		values, ok := row(line)
		if !ok {
			continue
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			stmt.Close()
			return n, fmt.Errorf("copy into %s: %w", table, err)
		}
		n++
		if n%DefaultProgressEvery == 0 {
			s.log.Info().Str("table", table).Int("rows", n).Msg("importing")
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return n, fmt.Errorf("flush copy into %s: %w", table, err)
	}
	if err := stmt.Close(); err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, err
	}
	s.log.Info().Str("table", table).Int("rows", n).Int("skipped", skipped).Msg("import complete")
	return n, nil
}

// Descendants returns the codes below code in system, excluding code
// itself. Cycles in the relation graph terminate because UNION discards
// rows already seen.
func (s *Store) Descendants(ctx context.Context, system, code string) ([]string, error) {
	var codes []string
	if err := s.db.SelectContext(ctx, &codes, descendantsQuery, system, code); err != nil {
		return nil, fmt.Errorf("query descendants of %s|%s: %w", system, code, err)
	}
	return codes, nil
}
