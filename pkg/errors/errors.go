// Package errors defines the structured errors raised by the query engine.
// Every error carries a stable code and a human readable custom message.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

type Code string

// Configuration errors. Raised while the schema is loaded.
const (
	CodeInvalidAssociationType  Code = "InvalidAssociationType"
	CodeMissingRequiredField    Code = "MissingRequiredField"
	CodeUnknownTargetEntity     Code = "UnknownTargetEntity"
	CodeInvalidAttributesConfig Code = "InvalidAttributesConfig"
	CodeInvalidWhereConfig      Code = "InvalidWhereConfig"
	CodeInvalidOrderConfig      Code = "InvalidOrderConfig"
	CodeDuplicateRelation       Code = "DuplicateRelation"
	CodeUnknownRelationAlias    Code = "UnknownRelationAlias"
)

// Request validation errors.
const (
	CodeNoFiltersProvided           Code = "NoFiltersProvided"
	CodeInvalidFilterObject         Code = "InvalidFilterObject"
	CodeInvalidFieldString          Code = "InvalidFieldString"
	CodeCannotUpdateWithoutCriteria Code = "CannotUpdateWithoutCriteria"
	CodeInvalidDbObjectsArray       Code = "InvalidDbObjectsArray"
	CodeUnknownEntity               Code = "UnknownEntity"
)

// Guard failures on delete.
const (
	CodeRelatedItemsExist Code = "RelatedItemsExist"
	CodeSystemCritical    Code = "SystemCritical"
)

type Category string

const (
	CategoryConfig  Category = "config"
	CategoryRequest Category = "request"
	CategoryGuard   Category = "guard"
)

var categories = map[Code]Category{
	CodeInvalidAssociationType:      CategoryConfig,
	CodeMissingRequiredField:        CategoryConfig,
	CodeUnknownTargetEntity:         CategoryConfig,
	CodeInvalidAttributesConfig:     CategoryConfig,
	CodeInvalidWhereConfig:          CategoryConfig,
	CodeInvalidOrderConfig:          CategoryConfig,
	CodeDuplicateRelation:           CategoryConfig,
	CodeUnknownRelationAlias:        CategoryConfig,
	CodeNoFiltersProvided:           CategoryRequest,
	CodeInvalidFilterObject:         CategoryRequest,
	CodeInvalidFieldString:          CategoryRequest,
	CodeCannotUpdateWithoutCriteria: CategoryRequest,
	CodeInvalidDbObjectsArray:       CategoryRequest,
	CodeUnknownEntity:               CategoryRequest,
	CodeRelatedItemsExist:           CategoryGuard,
	CodeSystemCritical:              CategoryGuard,
}

// CategoryOf returns the taxonomy bucket for a code.
func CategoryOf(code Code) Category {
	return categories[code]
}

// Sentinels for use with errors.Is.
var (
	ErrInvalidAssociationType      = &Error{Code: CodeInvalidAssociationType}
	ErrMissingRequiredField        = &Error{Code: CodeMissingRequiredField}
	ErrUnknownTargetEntity         = &Error{Code: CodeUnknownTargetEntity}
	ErrInvalidAttributesConfig     = &Error{Code: CodeInvalidAttributesConfig}
	ErrInvalidWhereConfig          = &Error{Code: CodeInvalidWhereConfig}
	ErrInvalidOrderConfig          = &Error{Code: CodeInvalidOrderConfig}
	ErrDuplicateRelation           = &Error{Code: CodeDuplicateRelation}
	ErrUnknownRelationAlias        = &Error{Code: CodeUnknownRelationAlias}
	ErrNoFiltersProvided           = &Error{Code: CodeNoFiltersProvided}
	ErrInvalidFilterObject         = &Error{Code: CodeInvalidFilterObject}
	ErrInvalidFieldString          = &Error{Code: CodeInvalidFieldString}
	ErrCannotUpdateWithoutCriteria = &Error{Code: CodeCannotUpdateWithoutCriteria}
	ErrInvalidDbObjectsArray       = &Error{Code: CodeInvalidDbObjectsArray}
	ErrUnknownEntity               = &Error{Code: CodeUnknownEntity}
	ErrRelatedItemsExist           = &Error{Code: CodeRelatedItemsExist}
	ErrSystemCritical              = &Error{Code: CodeSystemCritical}
)

type Error struct {
	Code    Code
	Message string
	Meta    map[string]any
	// Category overrides the bucket of Code when set.
	Category Category
}

func New(code Code, msg string) *Error {
	return &Error{
		Code:    code,
		Message: msg,
	}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) AddMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = map[string]any{}
	}
	e.Meta[key] = value
	return e
}

// Kind returns the category of e.
func (e *Error) Kind() Category {
	if e.Category != "" {
		return e.Category
	}
	return CategoryOf(e.Code)
}

// FromRequest re-tags a configuration error caused by a name the request supplied,
// such as an include alias or a $alias.field$ filter path, as a request error.
// Anything else is returned unchanged.
func FromRequest(err error) error {
	e, ok := As(err)
	if !ok || e.Kind() != CategoryConfig {
		return err
	}
	tagged := *e
	tagged.Category = CategoryRequest
	return &tagged
}

func (e *Error) StatusCode() int {
	switch e.Kind() {
	case CategoryConfig:
		return http.StatusInternalServerError
	case CategoryGuard:
		return http.StatusConflict
	}
	if e.Code == CodeUnknownEntity {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

func (e *Error) ToHTTPError() *httperror.HTTPError {
	httpErr := httperror.NewHTTPError(e.StatusCode(), e.Message).AddMetaValue("code", string(e.Code))
	for k, v := range e.Meta {
		httpErr = httpErr.AddMetaValue(k, v)
	}
	return httpErr
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func IsCode(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}
