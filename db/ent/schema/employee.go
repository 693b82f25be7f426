package schema

import (
	"errors"
	"regexp"

	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/field"
)

var (
	reEmployeeID    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	errEmployeeID   = errors.New("employee id may only contain letters, digits, '_' and '-'")
	amountOverrides = map[string]string{dialect.Postgres: "double precision", dialect.SQLite: "real"}
)

const EmployeeTable = "employees"

// Employee is the expected-record table the validation engine compares
// extracted payslips against.
type Employee struct{ ent.Schema }

func (Employee) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: EmployeeTable},
	}
}

func (Employee) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			NotEmpty().MaxLen(64).
			Immutable().
			Validate(func(s string) error {
				if reEmployeeID.MatchString(s) {
					return nil
				}
				return errEmployeeID
			}),
		field.String("name").NotEmpty().MaxLen(255),
		field.Float("expected_gross").Min(0).SchemaType(amountOverrides),
		field.Float("expected_net").Min(0).SchemaType(amountOverrides),
		field.Float("expected_deductions").SchemaType(amountOverrides),
	}
}
