package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-user-api/internal/domain"
)

// Password rule messages.
const (
	MsgPasswordTooShort = "The password must be at least 8 characters long"
	MsgPasswordTooLong  = "The password must be at most 64 characters long"
	MsgPasswordWeak     = "The password must contain at least one digit, one lowercase letter, and one uppercase letter"
)

// MsgInvalidID is reported for a malformed user id.
const MsgInvalidID = "Invalid id provided"

// CreateUserRequest is the JSON payload for creating a user.
//
// Fields are pointers so a missing key can be told apart from an empty
// string.
type CreateUserRequest struct {
	FirstName *string `json:"firstName" validate:"required,min=1,max=500" example:"Ada"`
	LastName  *string `json:"lastName" validate:"required,min=1,max=500" example:"Lovelace"`
	Email     *string `json:"email" validate:"required,email" example:"ada@example.com"`
	Password  *string `json:"password" validate:"required,min=8,max=64,strongpassword" example:"Password123"`
	Type      *string `json:"type" validate:"required,usertype" example:"teacher" enums:"student,teacher,parent,private_tutor"`
}

// Normalize trims names and email, folds the email to lower case and puts
// names in NFC form. The password is left untouched.
func (r *CreateUserRequest) Normalize() {
	if r.FirstName != nil {
		s := normalizeName(*r.FirstName)
		r.FirstName = &s
	}
	if r.LastName != nil {
		s := normalizeName(*r.LastName)
		r.LastName = &s
	}
	if r.Email != nil {
		// A Caser keeps state, so one is built per call.
		s := cases.Lower(language.Und).String(strings.TrimSpace(*r.Email))
		r.Email = &s
	}
}

func normalizeName(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// userFields lists the CreateUserRequest keys in declaration order.
var userFields = []struct {
	name string
	dst  func(*CreateUserRequest) **string
}{
	{"firstName", func(r *CreateUserRequest) **string { return &r.FirstName }},
	{"lastName", func(r *CreateUserRequest) **string { return &r.LastName }},
	{"email", func(r *CreateUserRequest) **string { return &r.Email }},
	{"password", func(r *CreateUserRequest) **string { return &r.Password }},
	{"type", func(r *CreateUserRequest) **string { return &r.Type }},
}

// DecodeCreateUser reads a create-user body and validates it. Each known key
// is checked for its raw JSON kind before it is bound, so every field holding
// a non-string value is reported as invalid_type, not just the first one the
// decoder trips over. A JSON null counts as a missing key. Read failures,
// empty bodies and syntax errors yield a single invalid_json issue.
func DecodeCreateUser(r io.Reader) (*CreateUserRequest, *Error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, newError(decodeIssue(err))
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, newError(decodeIssue(io.EOF))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) {
			return nil, newError(Issue{Code: CodeInvalidType, Path: []any{}, Message: "Expected object, received " + te.Value})
		}
		return nil, newError(decodeIssue(err))
	}
	if raw == nil {
		return nil, newError(Issue{Code: CodeInvalidType, Path: []any{}, Message: "Expected object, received null"})
	}

	req := &CreateUserRequest{}
	var issues []Issue
	typed := map[string]bool{}
	for _, f := range userFields {
		v, ok := raw[f.name]
		if !ok {
			continue
		}
		switch kind := rawKind(v); kind {
		case "null":
		case "string":
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, newError(decodeIssue(err))
			}
			*f.dst(req) = &s
		default:
			typed[f.name] = true
			issues = append(issues, Issue{
				Code:    CodeInvalidType,
				Path:    []any{f.name},
				Message: "Expected string, received " + kind,
			})
		}
	}
	if verr := checkUser(req, typed, issues); verr != nil {
		return nil, verr
	}
	return req, nil
}

// CreateUser validates a bound CreateUserRequest. decodeErr is the error the
// JSON binder returned, if any; syntax errors and empty bodies short-circuit
// into a single invalid_json issue, while a type mismatch is reported on its
// field next to the other rule failures. The binder stops at the first
// mismatch, so callers holding the raw body should use DecodeCreateUser. The
// request is normalized in place before the rules run.
func CreateUser(req *CreateUserRequest, decodeErr error) *Error {
	var issues []Issue
	typed := map[string]bool{}

	if decodeErr != nil {
		var te *json.UnmarshalTypeError
		if !errors.As(decodeErr, &te) {
			return newError(decodeIssue(decodeErr))
		}
		field := te.Field
		if field == "" {
			return newError(Issue{Code: CodeInvalidType, Path: []any{}, Message: "Expected object, received " + te.Value})
		}
		typed[field] = true
		issues = append(issues, Issue{
			Code:    CodeInvalidType,
			Path:    []any{field},
			Message: fmt.Sprintf("Expected %s, received %s", jsonKind(te), te.Value),
		})
	}
	return checkUser(req, typed, issues)
}

// checkUser normalizes req and runs the field rules, skipping fields that
// already carry a type issue.
func checkUser(req *CreateUserRequest, typed map[string]bool, issues []Issue) *Error {
	req.Normalize()
	if err := engine().Struct(req); err != nil {
		fes, root := fieldErrors(err)
		if root != nil {
			return newError(*root)
		}
		for _, fe := range fes {
			if typed[fe.Field()] {
				continue
			}
			issues = append(issues, userIssue(fe))
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return newError(issues...)
}

// rawKind names the JSON kind of an encoded value the way type issues do.
func rawKind(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "undefined"
	}
	switch v[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}

// ValidateID checks that id is a UUID.
func ValidateID(id string) *Error {
	if err := engine().Var(id, "required,uuid"); err != nil {
		return newError(Issue{Code: CodeInvalidString, Path: []any{"id"}, Message: MsgInvalidID})
	}
	return nil
}

func decodeIssue(err error) Issue {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return Issue{Code: CodeInvalidJSON, Path: []any{}, Message: "Request body is empty"}
	case errors.As(err, &mbe):
		return Issue{Code: CodeInvalidJSON, Path: []any{}, Message: "Request body is too large"}
	default:
		return Issue{Code: CodeInvalidJSON, Path: []any{}, Message: "Malformed JSON in request body"}
	}
}

func jsonKind(te *json.UnmarshalTypeError) string {
	if te.Type == nil {
		return "value"
	}
	k := te.Type.Kind().String()
	if k == "ptr" {
		k = te.Type.Elem().Kind().String()
	}
	return k
}

func userIssue(fe validator.FieldError) Issue {
	field := fe.Field()
	is := Issue{Path: []any{field}}
	switch fe.Tag() {
	case "required":
		is.Code, is.Message = CodeInvalidType, "Required"
	case "min":
		is.Code = CodeTooSmall
		is.Message = fmt.Sprintf("String must contain at least %s character(s)", fe.Param())
		if field == "password" {
			is.Message = MsgPasswordTooShort
		}
	case "max":
		is.Code = CodeTooBig
		is.Message = fmt.Sprintf("String must contain at most %s character(s)", fe.Param())
		if field == "password" {
			is.Message = MsgPasswordTooLong
		}
	case "email":
		is.Code, is.Message = CodeInvalidString, "Invalid email"
	case "strongpassword":
		is.Code, is.Message = CodeInvalidString, MsgPasswordWeak
	case "usertype":
		is.Code, is.Message = CodeInvalidEnum, enumMessage(fe.Value())
	default:
		is.Code, is.Message = CodeInvalidString, "Invalid"
	}
	return is
}

func enumMessage(v any) string {
	if p, ok := v.(*string); ok && p != nil {
		v = *p
	}
	want := make([]string, len(domain.UserTypes))
	for i, t := range domain.UserTypes {
		want[i] = "'" + string(t) + "'"
	}
	return fmt.Sprintf("Invalid enum value. Expected %s, received '%v'", strings.Join(want, " | "), v)
}

// strongPassword requires a digit, a lower-case and an upper-case letter.
func strongPassword(fl validator.FieldLevel) bool {
	var digit, lower, upper bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		}
	}
	return digit && lower && upper
}

func userType(fl validator.FieldLevel) bool {
	return domain.UserType(fl.Field().String()).Valid()
}
