package entity

// ExpectedRecord is the externally stored ground truth for one employee.
type ExpectedRecord struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	ExpectedGross      float64 `json:"expected_gross"`
	ExpectedNet        float64 `json:"expected_net"`
	ExpectedDeductions float64 `json:"expected_deductions"`
}

// FieldMatch compares one extracted value with its stored counterpart.
type FieldMatch struct {
	Extracted any  `json:"extracted"`
	Stored    any  `json:"stored"`
	Matches   bool `json:"matches"`
}

type EmployeeComparison struct {
	ID         string     `json:"id"`
	Name       FieldMatch `json:"name"`
	Similarity float64    `json:"similarity"`
}

type PaymentComparison struct {
	Gross      FieldMatch `json:"gross"`
	Net        FieldMatch `json:"net"`
	Deductions FieldMatch `json:"deductions"`
}

// ConsistencyCheck holds plausibility checks on the extracted amounts alone.
type ConsistencyCheck struct {
	Consistent bool     `json:"consistent"`
	Problems   []string `json:"problems,omitempty"`
}

// Comparison is the validation report for one page. It never alters the
// PageResult it was computed from.
type Comparison struct {
	Page          int                 `json:"page"`
	EmployeeFound bool                `json:"employee_found"`
	Message       string              `json:"message,omitempty"`
	Employee      *EmployeeComparison `json:"employee,omitempty"`
	Payment       *PaymentComparison  `json:"payment,omitempty"`
	Consistency   ConsistencyCheck    `json:"consistency"`
	AllMatch      bool                `json:"all_match"`
}
