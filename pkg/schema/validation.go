package schema

import "fmt"

// Issue codes reported by process model lint and request validation.
const (
	IssueConditionSyntax  = "CONDITION_SYNTAX"
	IssueUnnamedFlow      = "UNNAMED_FLOW"
	IssueDanglingFlow     = "DANGLING_FLOW"
	IssueNoStartEvent     = "NO_START_EVENT"
	IssueNoEndEvent       = "NO_END_EVENT"
	IssueGatewayNoOutflow = "GATEWAY_NO_OUTFLOW"
	IssueUnreachable      = "UNREACHABLE_ELEMENT"
	IssueConditionResult  = "CONDITION_RESULT"
	IssueNoRoute          = "NO_ROUTE"
	IssueAmbiguousRoute   = "AMBIGUOUS_ROUTE"
	IssueSchema           = "SCHEMA_VIOLATION"
)

// ValidationSeverity grades an issue. Only errors make a result invalid.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue is a single problem located by element ID or JSON pointer.
type ValidationIssue struct {
	Path     string             `json:"path"`
	Code     string             `json:"code"`
	Message  string             `json:"message"`
	Severity ValidationSeverity `json:"severity"`
}

// ValidationResult collects lint and schema issues for one document.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

func (r *ValidationResult) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityError})
}

func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message, Severity: SeverityWarning})
}

// Merge appends the issues of other, keeping their order.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Codes lists the distinct issue codes, errors first.
func (r *ValidationResult) Codes() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, list := range [][]ValidationIssue{r.Errors, r.Warnings} {
		for _, is := range list {
			if !seen[is.Code] {
				seen[is.Code] = true
				codes = append(codes, is.Code)
			}
		}
	}
	return codes
}

// ToError returns nil for a valid result. Otherwise the error carries code,
// the first message (or a count when there are several) and every issue in
// its details.
func (r *ValidationResult) ToError(code string) error {
	if r.Valid() {
		return nil
	}
	msg := r.Errors[0].Message
	if n := len(r.Errors); n > 1 {
		msg = fmt.Sprintf("%d issues, first at %s: %s", n, r.Errors[0].Path, msg)
	}
	return NewError(code, msg).WithDetails(map[string]any{
		"errorCount":   len(r.Errors),
		"warningCount": len(r.Warnings),
		"errors":       r.Errors,
		"warnings":     r.Warnings,
	})
}
