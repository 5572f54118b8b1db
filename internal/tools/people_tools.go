package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"manity/internal/domain"
)

// ErrNoEmailService is reported when send_email runs without a mail backend.
var ErrNoEmailService = errors.New("email service unavailable")

func addPersonTool() Definition {
	return define(AddPerson,
		"Add a person to the people directory. Existing names are left untouched.",
		Metadata{MutatesState: true, Tags: []string{TagPeople}},
		func(ctx context.Context, tc *Context, in *AddPersonInput) Result {
			const label = "Add person"
			name := strings.TrimSpace(in.Name)
			if existing, ok := tc.FindPerson(name); ok {
				return skipped(label, fmt.Sprintf("%s is already in the directory", existing.Name))
			}
			person := domain.Person{Name: name, Team: in.Team, Email: in.Email}
			if tc.Services != nil {
				created, err := tc.Services.CreatePerson(ctx, person)
				if err != nil {
					return Failure(label, fmt.Errorf("create person %s: %w", name, err))
				}
				person = created
			}
			if person.ID == "" {
				person.ID = tc.NewID("person")
			}
			tc.AddPerson(person)
			detail := "Added " + person.Name
			if person.Team != "" {
				detail += " (" + person.Team + ")"
			}
			return success(label, detail, person.ID)
		})
}

func sendEmailTool() Definition {
	return define(SendEmail,
		"Send an email. Recipients may be addresses or names from the people directory.",
		Metadata{SideEffecting: true, RequiresConfirmation: true, ReadsState: true, Tags: []string{TagCommunication}},
		func(ctx context.Context, tc *Context, in *SendEmailInput) Result {
			const label = "Send email"
			if tc.Services == nil {
				return Failure(label, ErrNoEmailService)
			}
			var to, unresolved []string
			for _, r := range in.Recipients {
				r = strings.TrimSpace(r)
				if strings.Contains(r, "@") {
					to = append(to, r)
					continue
				}
				if p, ok := tc.FindPerson(r); ok && p.Email != "" {
					to = append(to, p.Email)
					continue
				}
				unresolved = append(unresolved, r)
			}
			if len(to) == 0 {
				return skipped(label, "no recipient could be resolved to an email address: "+strings.Join(unresolved, ", "))
			}
			err := tc.Services.SendEmail(ctx, domain.Email{Recipients: to, Subject: in.Subject, Body: in.Body})
			if err != nil {
				return Failure(label, fmt.Errorf("send email: %w", err))
			}
			detail := fmt.Sprintf("Sent %q to %s", in.Subject, strings.Join(to, ", "))
			if len(unresolved) > 0 {
				detail += "; could not resolve " + strings.Join(unresolved, ", ")
			}
			return success(label, detail)
		})
}
