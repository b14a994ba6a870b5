package student

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/NickGuerrero/cti-sys/core"
)

type Student struct {
	CtiID         int    `json:"cti_id"`
	FirstName     string `json:"fname"`
	PreferredName string `json:"pname,omitempty"`
	LastName      string `json:"lname"`
	Active        bool   `json:"active"`
}

func (s Student) FullName() string {
	first := s.FirstName
	if s.PreferredName != "" {
		first = s.PreferredName
	}
	return strings.TrimSpace(first + " " + s.LastName)
}

type StudentEmail struct {
	Email     string
	CtiID     int
	IsPrimary bool
}

// AlternateEmailRequest is submitted through the alternate emails form.
// GoogleFormEmail identifies the student.
type AlternateEmailRequest struct {
	AltEmails       []string `json:"alt_emails" validate:"dive,email"`
	PrimaryEmail    string   `json:"primary_email" validate:"omitempty,email"`
	RemoveEmails    []string `json:"remove_emails" validate:"dive,email"`
	GoogleFormEmail string   `json:"google_form_email" validate:"required,email"`
}

func (r *AlternateEmailRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r *AlternateEmailRequest) normalize() {
	r.GoogleFormEmail = core.CleanString(r.GoogleFormEmail, true /* lower */)
	r.PrimaryEmail = core.CleanString(r.PrimaryEmail, true /* lower */)
	r.AltEmails = core.CleanStrings(r.AltEmails, true /* lower */)
	r.RemoveEmails = core.CleanStrings(r.RemoveEmails, true /* lower */)
}

// EmailSummary lists a student's addresses after an update.
type EmailSummary struct {
	Emails       []string `json:"emails"`
	PrimaryEmail string   `json:"primary_email"`
}
