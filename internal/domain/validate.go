package domain

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct runs the struct's validate tags and reports the first failure
// as a ValidationError.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return translate(err)
	}
	return nil
}

// translate converts the first validator failure into a ValidationError.
func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return Invalid(fe.Field(), "is required")
	case "min":
		return Invalid(fe.Field(), "must be at least "+fe.Param())
	case "datetime":
		return Invalid(fe.Field(), "must be a date formatted as YYYY-MM-DD")
	case "email":
		return Invalid(fe.Field(), "must be an email address")
	default:
		return Invalid(fe.Field(), "failed "+fe.Tag())
	}
}

// Normalize trims text fields and applies the default activity type.
func (d TaskDraft) Normalize() TaskDraft {
	d.Subject = strings.TrimSpace(d.Subject)
	d.Topic = strings.TrimSpace(d.Topic)
	d.Notes = strings.TrimSpace(d.Notes)
	if d.ActivityType == "" {
		d.ActivityType = ActivityLearnConcept
	}
	return d
}

func (d TaskDraft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return translate(err)
	}
	if !d.ActivityType.Valid() {
		return Invalid("activity_type", "must be one of "+joinActivityTypes())
	}
	return nil
}

// ValidateTask checks a full task record before it replaces a stored one.
func ValidateTask(t Task) error {
	if strings.TrimSpace(t.ID) == "" {
		return Invalid("id", "is required")
	}
	return TaskDraft{
		Subject:         t.Subject,
		Topic:           t.Topic,
		ActivityType:    t.ActivityType,
		ScheduledAt:     t.ScheduledAt,
		DurationMinutes: t.DurationMinutes,
		Notes:           t.Notes,
	}.Validate()
}

func (d TestDraft) Normalize() TestDraft {
	d.TestName = strings.TrimSpace(d.TestName)
	d.StartDate = strings.TrimSpace(d.StartDate)
	d.EndDate = strings.TrimSpace(d.EndDate)
	d.Syllabus = strings.TrimSpace(d.Syllabus)
	return d
}

func (d TestDraft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return translate(err)
	}
	start, _ := time.Parse(DateLayout, d.StartDate)
	end, _ := time.Parse(DateLayout, d.EndDate)
	if end.Before(start) {
		return Invalid("end_date", "must not be before start_date")
	}
	return nil
}

func joinActivityTypes() string {
	names := make([]string, len(ActivityTypes))
	for i, a := range ActivityTypes {
		names[i] = string(a)
	}
	return strings.Join(names, ", ")
}
