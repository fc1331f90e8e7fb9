package reconcile

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psihotips/psihotips-ops/pkg/database"
	"github.com/psihotips/psihotips-ops/pkg/logger"
)

// fakeSession simulates just enough of the catalog and DDL surface: it
// tracks per-column default expressions and sequence existence, flags
// columns by marker, and applies corrective statements on commit.
type fakeSession struct {
	defaults  map[FlaggedColumn]string
	sequences map[string]bool

	failSubstrings []string
	queryErr       error
	tableCount     int

	begun      int
	committed  int
	rolledBack int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		defaults:  make(map[FlaggedColumn]string),
		sequences: make(map[string]bool),
	}
}

func (s *fakeSession) flagged() []FlaggedColumn {
	var cols []FlaggedColumn
	for col, def := range s.defaults {
		if strings.Contains(strings.ToLower(def), autoIncrementMarker) {
			cols = append(cols, col)
		}
	}
	sort.Slice(cols, func(i, j int) bool {
		if cols[i].Table != cols[j].Table {
			return cols[i].Table < cols[j].Table
		}
		return cols[i].Column < cols[j].Column
	})
	return cols
}

func (s *fakeSession) apply(stmt string) {
	for col := range s.defaults {
		fix := col.fixStatements()
		switch stmt {
		case fix[0]:
			s.defaults[col] = ""
		case fix[1]:
			delete(s.sequences, col.SequenceName())
		case fix[2]:
			s.sequences[col.SequenceName()] = true
		case fix[3]:
			s.defaults[col] = "nextval('" + col.SequenceName() + "'::regclass)"
		}
	}
}

func (s *fakeSession) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("unexpected non-transactional exec")
}

func (s *fakeSession) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	rows := &fakeRows{}
	for _, col := range s.flagged() {
		rows.rows = append(rows.rows, [2]string{col.Table, col.Column})
	}
	return rows, nil
}

func (s *fakeSession) QueryRow(ctx context.Context, sql string, args ...any) database.Row {
	return fakeRow{scan: func(dest ...any) error {
		if s.queryErr != nil {
			return s.queryErr
		}
		*(dest[0].(*int)) = s.tableCount
		return nil
	}}
}

func (s *fakeSession) Begin(ctx context.Context) (database.Tx, error) {
	s.begun++
	return &fakeTx{session: s}, nil
}

type fakeTx struct {
	session *fakeSession
	pending []string
	done    bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	for _, fail := range t.session.failSubstrings {
		if strings.Contains(sql, fail) {
			return pgconn.CommandTag{}, errors.New("permission denied")
		}
	}
	t.pending = append(t.pending, sql)
	return pgconn.CommandTag{}, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.done = true
	t.session.committed++
	for _, stmt := range t.pending {
		t.session.apply(stmt)
	}
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.done {
		t.done = true
		t.session.rolledBack++
		t.pending = nil
	}
	return nil
}

type fakeRows struct {
	rows [][2]string
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.idx-1]
	*(dest[0].(*string)) = row[0]
	*(dest[1].(*string)) = row[1]
	return nil
}

func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

type fakeRow struct {
	scan func(dest ...any) error
}

func (r fakeRow) Scan(dest ...any) error { return r.scan(dest...) }

func testLogger() logger.Logger {
	return logger.New("reconcile-test", "test")
}

func botColumns() []FlaggedColumn {
	return []FlaggedColumn{
		{Table: "anonymous_questions", Column: "question_id"},
		{Table: "command_logs", Column: "log_id"},
		{Table: "daily_tips", Column: "tip_id"},
	}
}

func seedFake(cols []FlaggedColumn) *fakeSession {
	s := newFakeSession()
	for _, col := range cols {
		s.defaults[col] = "AUTOINCREMENT"
	}
	s.tableCount = len(cols)
	return s
}

func TestSequenceNameIsDeterministic(t *testing.T) {
	col := FlaggedColumn{Table: "command_logs", Column: "log_id"}
	assert.Equal(t, "command_logs_log_id_seq", col.SequenceName())
	assert.Equal(t, col.SequenceName(), col.SequenceName())
}

func TestFixStatements(t *testing.T) {
	col := FlaggedColumn{Table: "t", Column: "id"}

	want := []string{
		`ALTER TABLE "t" ALTER COLUMN "id" DROP DEFAULT`,
		`DROP SEQUENCE IF EXISTS "t_id_seq"`,
		`CREATE SEQUENCE "t_id_seq" OWNED BY "t"."id"`,
		`ALTER TABLE "t" ALTER COLUMN "id" SET DEFAULT nextval('"t_id_seq"'::regclass)`,
		`SELECT setval('"t_id_seq"', COALESCE((SELECT MAX("id") FROM "t"), 0) + 1, false)`,
	}
	assert.Equal(t, want, col.fixStatements())
}

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "users", `"users"`},
		{"mixed case preserved", "CommandLogs", `"CommandLogs"`},
		{"embedded quote escaped", `evil"name`, `"evil""name"`},
		{"spaces kept literal", "odd name", `"odd name"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, quoteIdentifier(tt.in))
		})
	}
}

func TestReconcileFixesAllFlaggedColumns(t *testing.T) {
	cols := botColumns()
	session := seedFake(cols)
	r := New(session, testLogger())

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(cols), len(report.Outcomes))
	assert.Equal(t, len(cols), report.Fixed())
	assert.Zero(t, report.Failed())

	for _, col := range cols {
		assert.True(t, session.sequences[col.SequenceName()], "sequence for %s.%s must exist", col.Table, col.Column)
		assert.Contains(t, session.defaults[col], "nextval", "default for %s.%s must be rebound", col.Table, col.Column)
	}
	assert.Equal(t, len(cols), session.committed)
	assert.Zero(t, session.rolledBack)
}

func TestReconcileIsIdempotent(t *testing.T) {
	session := seedFake(botColumns())
	r := New(session, testLogger())

	first, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, first.Fixed())

	second, err := r.Reconcile(context.Background())
	require.NoError(t, err)
	assert.True(t, second.Empty(), "second run with no structural change must be a no-op")
	assert.Equal(t, 3, session.committed, "no additional transactions on the second run")
}

func TestOneColumnFailureDoesNotAbortBatch(t *testing.T) {
	cols := botColumns()
	session := seedFake(cols)
	session.failSubstrings = []string{`"daily_tips"`}
	r := New(session, testLogger())

	report, err := r.Reconcile(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(cols), len(report.Outcomes), "report must be count-matched to introspection")
	assert.Equal(t, 2, report.Fixed())
	assert.Equal(t, 1, report.Failed())

	var failed *Outcome
	for i := range report.Outcomes {
		if report.Outcomes[i].Err != nil {
			failed = &report.Outcomes[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, "daily_tips", failed.Column.Table)

	var fixErr *ColumnFixError
	require.True(t, errors.As(failed.Err, &fixErr))

	// The failed column's transaction rolled back: marker default untouched.
	assert.Equal(t, "AUTOINCREMENT", session.defaults[FlaggedColumn{Table: "daily_tips", Column: "tip_id"}])
	assert.Equal(t, 1, session.rolledBack)

	// The other columns were still repaired.
	assert.Contains(t, session.defaults[FlaggedColumn{Table: "command_logs", Column: "log_id"}], "nextval")
}

func TestReconcileIntrospectionFailureIsFatal(t *testing.T) {
	session := newFakeSession()
	session.queryErr = errors.New("catalog unavailable")
	r := New(session, testLogger())

	report, err := r.Reconcile(context.Background())

	require.Error(t, err)
	assert.Nil(t, report)
	var introspectionErr *IntrospectionError
	assert.True(t, errors.As(err, &introspectionErr))
}

func TestFixColumnsPreservesInputOrder(t *testing.T) {
	cols := botColumns()
	session := seedFake(cols)
	r := New(session, testLogger())

	report := r.FixColumns(context.Background(), cols)

	require.Len(t, report.Outcomes, len(cols))
	for i, col := range cols {
		assert.Equal(t, col, report.Outcomes[i].Column)
	}
}

func TestTableCount(t *testing.T) {
	session := newFakeSession()
	session.tableCount = 8
	r := New(session, testLogger())

	count, err := r.TableCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, count)

	session.queryErr = errors.New("catalog unavailable")
	_, err = r.TableCount(context.Background())
	var introspectionErr *IntrospectionError
	assert.True(t, errors.As(err, &introspectionErr))
}

func TestReportSummary(t *testing.T) {
	report := NewReport()
	assert.Contains(t, report.Summary(), "nothing to repair")

	report.Add(FlaggedColumn{Table: "t", Column: "id"}, nil)
	report.Add(FlaggedColumn{Table: "u", Column: "id"}, errors.New("nope"))
	assert.Contains(t, report.Summary(), "fixed 1 of 2")
}
