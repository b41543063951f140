// Package validation checks marker payloads before they reach storage.
//
// Rules are declared as go-playground/validator tags on a normalized struct.
// Only the first failing rule is reported, in field order: latitude,
// longitude, content.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/marker-map/backend/internal/models"
)

// Field messages returned to clients.
const (
	MsgLatitudeRequired     = "latitude required"
	MsgLatitudeOutOfRange   = "latitude out of range"
	MsgLongitudeRequired    = "longitude required"
	MsgLongitudeOutOfRange  = "longitude out of range"
	MsgContentRequired      = "content required"
	MsgContentLengthInvalid = "content length invalid"
)

// MaxContentLength is the maximum number of characters in trimmed content.
const MaxContentLength = 200

// contentTag is registered as an alias so the length bound has one source.
const contentTag = "markercontent"

// decimalPattern accepts plain decimal numbers with an optional exponent.
// Hex floats, underscores and "Inf"/"NaN" spellings are rejected.
var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidationError describes the first rule a marker payload failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// MarkerInput is a candidate marker as decoded from a request body.
// A nil field means the client did not send it.
type MarkerInput struct {
	Lat     any `json:"lat"`
	Lng     any `json:"lng"`
	Content any `json:"content"`
}

// markerFields is MarkerInput after type coercion. Field order defines the
// order checks are reported in.
type markerFields struct {
	Lat     *float64 `validate:"required,min=-90,max=90"`
	Lng     *float64 `validate:"required,min=-180,max=180"`
	Content *string  `validate:"markercontent"`
}

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterAlias(contentTag, fmt.Sprintf("required,min=1,max=%d", MaxContentLength))
	})
	return validate
}

// ValidateMarker checks in and returns a normalized draft with trimmed
// content. It never touches storage.
func ValidateMarker(in MarkerInput) (models.Draft, error) {
	fields := markerFields{
		Lat: toCoordinate(in.Lat),
		Lng: toCoordinate(in.Lng),
	}
	if s, ok := in.Content.(string); ok {
		trimmed := strings.TrimSpace(s)
		fields.Content = &trimmed
	}

	if err := getValidator().Struct(fields); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return models.Draft{}, fmt.Errorf("validating marker: %w", err)
		}
		return models.Draft{}, translate(verrs[0])
	}

	return models.Draft{
		Position: models.Position{Lat: *fields.Lat, Lng: *fields.Lng},
		Content:  *fields.Content,
	}, nil
}

func translate(fe validator.FieldError) *ValidationError {
	// ActualTag resolves aliases to the rule that failed
	required := fe.ActualTag() == "required"
	switch fe.StructField() {
	case "Lat":
		if required {
			return &ValidationError{Field: "lat", Message: MsgLatitudeRequired}
		}
		return &ValidationError{Field: "lat", Message: MsgLatitudeOutOfRange}
	case "Lng":
		if required {
			return &ValidationError{Field: "lng", Message: MsgLongitudeRequired}
		}
		return &ValidationError{Field: "lng", Message: MsgLongitudeOutOfRange}
	default:
		if required {
			return &ValidationError{Field: "content", Message: MsgContentRequired}
		}
		return &ValidationError{Field: "content", Message: MsgContentLengthInvalid}
	}
}

// toCoordinate coerces a decoded JSON value to a finite float. Plain decimal
// strings are accepted; anything else is treated as missing.
func toCoordinate(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		n = strings.TrimSpace(n)
		if !decimalPattern.MatchString(n) {
			return nil
		}
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	// -0 and 0 must land on the same position
	if f == 0 {
		f = 0
	}
	return &f
}
