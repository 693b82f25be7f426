package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/payslip-extractor/db/ent/schema"
	"github.com/joseph-ayodele/payslip-extractor/internal/common"
	"github.com/joseph-ayodele/payslip-extractor/internal/entity"
)

// EmployeeRepository stores the expected payslip figures per employee.
type EmployeeRepository interface {
	Migrate(ctx context.Context) error
	Get(ctx context.Context, id string) (entity.ExpectedRecord, error)
	List(ctx context.Context) ([]entity.ExpectedRecord, error)
	Upsert(ctx context.Context, recs ...entity.ExpectedRecord) error
	Seed(ctx context.Context) error
}

type employeeRepository struct {
	db      *DB
	table   string
	columns []string
	fields  []*field.Descriptor
	logger  *slog.Logger
}

func NewEmployeeRepository(db *DB, logger *slog.Logger) EmployeeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &employeeRepository{db: db, table: schema.EmployeeTable, logger: logger}
	for _, f := range (schema.Employee{}).Fields() {
		d := f.Descriptor()
		r.fields = append(r.fields, d)
		r.columns = append(r.columns, d.Name)
	}
	return r
}

func (r *employeeRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.db.Dialect())
}

// Migrate creates the employees table from the Ent schema when missing.
func (r *employeeRepository) Migrate(ctx context.Context) error {
	d := r.db.Dialect()
	cols := make([]entsql.Querier, 0, len(r.fields))
	for _, f := range r.fields {
		cols = append(cols, r.builder().Column(f.Name).Type(columnType(f, d)+" NOT NULL"))
	}
	ddl := r.builder().String(func(b *entsql.Builder) {
		b.WriteString("CREATE TABLE IF NOT EXISTS ").Ident(r.table).Pad().Wrap(func(b *entsql.Builder) {
			b.JoinComma(cols...)
			b.Comma().WriteString("PRIMARY KEY").Pad().Wrap(func(b *entsql.Builder) { b.Ident(r.fields[0].Name) })
		})
	})
	if err := r.db.Driver.Exec(ctx, ddl, []any{}, nil); err != nil {
		return common.NewAppError(common.CodeTransport, "migrate "+r.table, err)
	}
	r.logger.Debug("repository.migrated", "table", r.table, "dialect", d)
	return nil
}

func (r *employeeRepository) Get(ctx context.Context, id string) (entity.ExpectedRecord, error) {
	query, args := r.builder().Select(r.columns...).
		From(entsql.Table(r.table)).
		Where(entsql.EQ("id", id)).
		Limit(1).
		Query()
	recs, err := r.query(ctx, query, args)
	if err != nil {
		return entity.ExpectedRecord{}, err
	}
	if len(recs) == 0 {
		return entity.ExpectedRecord{}, common.NewAppError(common.CodeNotFound, fmt.Sprintf("employee %q not found", id), nil)
	}
	return recs[0], nil
}

// List returns every record ordered by id.
func (r *employeeRepository) List(ctx context.Context) ([]entity.ExpectedRecord, error) {
	query, args := r.builder().Select(r.columns...).
		From(entsql.Table(r.table)).
		OrderBy("id").
		Query()
	return r.query(ctx, query, args)
}

func (r *employeeRepository) query(ctx context.Context, query string, args []any) ([]entity.ExpectedRecord, error) {
	var rows entsql.Rows
	if err := r.db.Driver.Query(ctx, query, args, &rows); err != nil {
		return nil, common.NewAppError(common.CodeTransport, "query "+r.table, err)
	}
	defer rows.Close()
	var recs []entity.ExpectedRecord
	if err := entsql.ScanSlice(rows, &recs); err != nil {
		return nil, common.NewAppError(common.CodeTransport, "scan "+r.table, err)
	}
	return recs, nil
}

// Upsert inserts recs, replacing existing rows with the same id. Every
// record is checked against the schema validators first; nothing is
// written if one fails.
func (r *employeeRepository) Upsert(ctx context.Context, recs ...entity.ExpectedRecord) error {
	if len(recs) == 0 {
		return nil
	}
	ins := r.builder().Insert(r.table).Columns(r.columns...)
	for _, rec := range recs {
		vals := values(rec)
		for i, f := range r.fields {
			if err := runValidators(f, vals[i]); err != nil {
				return common.InvalidArgumentErrorf("employee %q: %s: %v", rec.ID, f.Name, err)
			}
		}
		ins.Values(vals...)
	}
	query, args := ins.OnConflict(
		entsql.ConflictColumns("id"),
		entsql.ResolveWithNewValues(),
	).Query()
	if err := r.db.Driver.Exec(ctx, query, args, nil); err != nil {
		return common.NewAppError(common.CodeTransport, "upsert "+r.table, err)
	}
	r.logger.Info("repository.upserted", "table", r.table, "count", len(recs))
	return nil
}

// Seed migrates and loads the sample records.
func (r *employeeRepository) Seed(ctx context.Context) error {
	if err := r.Migrate(ctx); err != nil {
		return err
	}
	return r.Upsert(ctx, SampleRecords()...)
}

// SampleRecords are the five demo employees the sample payslips belong to.
func SampleRecords() []entity.ExpectedRecord {
	return []entity.ExpectedRecord{
		{ID: "EMP001", Name: "Erika Mustermann", ExpectedGross: 2124.00, ExpectedNet: 1374.78, ExpectedDeductions: 749.22},
		{ID: "EMP002", Name: "Hans Mueller", ExpectedGross: 3500.00, ExpectedNet: 2200.50, ExpectedDeductions: 1299.50},
		{ID: "EMP003", Name: "Michael Schmidt", ExpectedGross: 4200.00, ExpectedNet: 2650.75, ExpectedDeductions: 1549.25},
		{ID: "EMP004", Name: "Anna Klein", ExpectedGross: 3100.00, ExpectedNet: 1980.25, ExpectedDeductions: 1119.75},
		{ID: "EMP005", Name: "Maria Weber", ExpectedGross: 2800.00, ExpectedNet: 1820.30, ExpectedDeductions: 979.70},
	}
}

// values follows the field order of schema.Employee.
func values(rec entity.ExpectedRecord) []any {
	return []any{rec.ID, rec.Name, rec.ExpectedGross, rec.ExpectedNet, rec.ExpectedDeductions}
}

func runValidators(f *field.Descriptor, v any) error {
	for _, fn := range f.Validators {
		var err error
		switch fn := fn.(type) {
		case func(string) error:
			s, _ := v.(string)
			err = fn(s)
		case func(float64) error:
			n, _ := v.(float64)
			err = fn(n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func columnType(f *field.Descriptor, d string) string {
	if t, ok := f.SchemaType[d]; ok {
		return t
	}
	switch f.Info.Type {
	case field.TypeFloat64, field.TypeFloat32:
		if d == dialect.Postgres {
			return "double precision"
		}
		return "real"
	case field.TypeInt, field.TypeInt64:
		if d == dialect.Postgres {
			return "bigint"
		}
		return "integer"
	}
	if d == dialect.Postgres && f.Size > 0 {
		return fmt.Sprintf("varchar(%d)", f.Size)
	}
	return "text"
}
