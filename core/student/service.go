package student

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/NickGuerrero/cti-sys/core"
)

var (
	// errors
	ErrNotFound = errors.New("student not found")
)

type (
	Repository interface {
		// FindCtiIDByEmail matches email case-insensitively against every student address.
		FindCtiIDByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (int, error)
		GetStudent(ctx context.Context, ctiID int, exec ...core.DBExecutor) (Student, error)
		QueryEmails(ctx context.Context, ctiID int, exec ...core.DBExecutor) ([]StudentEmail, error)
		AddEmail(ctx context.Context, email StudentEmail, exec ...core.DBExecutor) error
		RemoveEmail(ctx context.Context, ctiID int, email string, exec ...core.DBExecutor) error
		// SetPrimaryEmail clears the student's primary flag, then sets it on email.
		SetPrimaryEmail(ctx context.Context, ctiID int, email string, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		ModifyEmails(ctx context.Context, req AlternateEmailRequest) (EmailSummary, error)
		CurrentEmails(ctx context.Context, email string) (EmailSummary, error)
	}

	Service struct {
		db      core.DB
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(db core.DB, repo Repository, mailSvc core.EmailService) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		mailSvc: mailSvc,
	}
}

// emailChanges records what ModifyEmails actually changed, for notifications.
type emailChanges struct {
	formEmail  string
	removed    []string
	added      []string
	oldPrimary string
	newPrimary string
}

// ModifyEmails adds and removes a student's alternate emails and optionally confirms a new primary one,
// all in a single transaction. The student is the owner of req.GoogleFormEmail.
func (svc *Service) ModifyEmails(ctx context.Context, req AlternateEmailRequest) (EmailSummary, error) {
	req.normalize()
	if req.PrimaryEmail != "" && req.PrimaryEmail != req.GoogleFormEmail {
		return EmailSummary{}, core.NewPermissionError("primary email must match the email used to submit the form")
	}

	changes := emailChanges{formEmail: req.GoogleFormEmail}
	var summary EmailSummary

	err := core.RunInTx(ctx, svc.db, func(tx core.DBTransactor) error {
		ctiID, err := svc.repo.FindCtiIDByEmail(ctx, req.GoogleFormEmail, tx)
		if err != nil {
			return err
		}

		emails, err := svc.repo.QueryEmails(ctx, ctiID, tx)
		if err != nil {
			return errors.Wrap(err, "querying student emails")
		}
		owned := make(map[string]bool, len(emails)) // {email: isPrimary}
		for _, e := range emails {
			addr := strings.ToLower(e.Email)
			owned[addr] = e.IsPrimary
			if e.IsPrimary {
				changes.oldPrimary = addr
			}
		}

		removing := make(map[string]bool, len(req.RemoveEmails))
		for _, email := range req.RemoveEmails {
			removing[email] = true

			isPrimary, ok := owned[email]
			if !ok {
				continue
			}
			if isPrimary && req.PrimaryEmail == "" {
				return core.NewPermissionError(fmt.Sprintf("cannot remove primary email: %s without specifying a new primary email", email))
			}
			if email == req.PrimaryEmail {
				return core.NewPermissionError(fmt.Sprintf("cannot remove %s while making it the primary email", email))
			}
			if err = svc.repo.RemoveEmail(ctx, ctiID, email, tx); err != nil {
				return errors.Wrap(err, "removing email")
			}
			delete(owned, email)
			changes.removed = append(changes.removed, email)
		}

		for _, email := range req.AltEmails {
			if removing[email] {
				continue
			}
			if _, ok := owned[email]; ok {
				continue
			}
			ownerID, err := svc.repo.FindCtiIDByEmail(ctx, email, tx)
			if err == nil && ownerID != ctiID {
				return core.NewPermissionError(fmt.Sprintf("email '%s' is already associated with another student", email))
			} else if err != nil && errors.Cause(err) != ErrNotFound {
				return errors.Wrap(err, "checking email owner")
			}
			if err = svc.repo.AddEmail(ctx, StudentEmail{Email: email, CtiID: ctiID}, tx); err != nil {
				return errors.Wrap(err, "adding email")
			}
			owned[email] = false
			changes.added = append(changes.added, email)
		}

		if req.PrimaryEmail != "" {
			if err = svc.repo.SetPrimaryEmail(ctx, ctiID, req.PrimaryEmail, tx); err != nil {
				return errors.Wrap(err, "setting primary email")
			}
			changes.newPrimary = req.PrimaryEmail
		}

		summary, err = svc.summarize(ctx, ctiID, tx)
		return err
	})
	if err != nil {
		return EmailSummary{}, err
	}

	svc.notify(changes)
	return summary, nil
}

// CurrentEmails returns the addresses of the student owning email.
func (svc *Service) CurrentEmails(ctx context.Context, email string) (EmailSummary, error) {
	ctiID, err := svc.repo.FindCtiIDByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return EmailSummary{}, err
	}
	return svc.summarize(ctx, ctiID)
}

func (svc *Service) summarize(ctx context.Context, ctiID int, exec ...core.DBExecutor) (EmailSummary, error) {
	emails, err := svc.repo.QueryEmails(ctx, ctiID, exec...)
	if err != nil {
		return EmailSummary{}, errors.Wrap(err, "querying student emails")
	}
	summary := EmailSummary{Emails: make([]string, 0, len(emails))}
	for _, e := range emails {
		summary.Emails = append(summary.Emails, e.Email)
		if e.IsPrimary {
			summary.PrimaryEmail = e.Email
		}
	}
	sort.Strings(summary.Emails)
	return summary, nil
}

type notificationData struct {
	EmailList  string
	OldPrimary string
	NewPrimary string
}

func (svc *Service) notify(c emailChanges) {
	var messages []*core.EmailMessage
	formAddr := []mail.Address{{Address: c.formEmail}}

	if len(c.removed) > 0 {
		messages = append(messages, &core.EmailMessage{
			To:           formAddr,
			Subject:      "Alternate email(s) removed",
			TemplateName: "alternate_emails_removed",
			TemplateData: notificationData{EmailList: strings.Join(c.removed, ", ")},
		})
	}
	if len(c.added) > 0 {
		messages = append(messages, &core.EmailMessage{
			To:           formAddr,
			Subject:      "New alternate email(s) added",
			TemplateName: "alternate_emails_added",
			TemplateData: notificationData{EmailList: strings.Join(c.added, ", ")},
		})
	}
	if c.newPrimary != "" {
		data := notificationData{OldPrimary: c.oldPrimary, NewPrimary: c.newPrimary}
		if c.oldPrimary != "" && c.oldPrimary != c.newPrimary {
			messages = append(messages, &core.EmailMessage{
				To:           []mail.Address{{Address: c.oldPrimary}},
				Subject:      "Your primary email was changed",
				TemplateName: "primary_email_changed",
				TemplateData: data,
			})
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Address: c.newPrimary}},
			Subject:      "New primary email confirmed",
			TemplateName: "primary_email_confirmed",
			TemplateData: data,
		})
	}

	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}
