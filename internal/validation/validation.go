// Package validation turns request input into structured issues.
//
// It wraps go-playground/validator with JSON field names and fixed, client
// facing messages. Every failure is reported as an *Error holding an ordered
// list of Issue values: type issues first, then size, format and enum issues,
// keeping field order within each group. At most one issue is reported per
// field.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Issue codes.
const (
	CodeInvalidType   = "invalid_type"
	CodeTooSmall      = "too_small"
	CodeTooBig        = "too_big"
	CodeInvalidString = "invalid_string"
	CodeInvalidEnum   = "invalid_enum_value"
	CodeInvalidJSON   = "invalid_json"
)

// ErrorName is the name reported alongside every issue list.
const ErrorName = "ValidationError"

// Issue describes one failed rule. Path holds the field names (strings) and
// array indexes (ints) leading to the offending value.
type Issue struct {
	Code    string `json:"code" example:"invalid_type"`
	Path    []any  `json:"path" swaggertype:"array,string" example:"firstName"`
	Message string `json:"message,omitempty" example:"Required"`
}

// Error is a failed validation. It is the only error type whose content is
// returned to API clients verbatim.
type Error struct {
	Issues []Issue `json:"issues"`
	Name   string  `json:"name" example:"ValidationError"`
}

func (e *Error) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", pathString(is.Path), is.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func newError(issues ...Issue) *Error {
	sortIssues(issues)
	return &Error{Issues: issues, Name: ErrorName}
}

// rank orders issue codes: type < size < format < enum.
func rank(code string) int {
	switch code {
	case CodeInvalidJSON, CodeInvalidType:
		return 0
	case CodeTooSmall, CodeTooBig:
		return 1
	case CodeInvalidString:
		return 2
	case CodeInvalidEnum:
		return 3
	default:
		return 4
	}
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return rank(issues[i].Code) < rank(issues[j].Code)
	})
}

func pathString(path []any) string {
	if len(path) == 0 {
		return "(root)"
	}
	s := make([]string, len(path))
	for i, p := range path {
		s[i] = fmt.Sprint(p)
	}
	return strings.Join(s, ".")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// engine returns the shared validator. *validator.Validate caches struct
// metadata and is safe for concurrent use once configured.
func engine() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		// Registration only fails for empty tags or nil funcs.
		_ = v.RegisterValidation("strongpassword", strongPassword)
		_ = v.RegisterValidation("usertype", userType)
		validate = v
	})
	return validate
}

// fieldErrors extracts validator field errors from err. Any other error is
// returned as a single issue at the root path.
func fieldErrors(err error) ([]validator.FieldError, *Issue) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return ve, nil
	}
	return nil, &Issue{Code: CodeInvalidType, Path: []any{}, Message: "Expected object"}
}
