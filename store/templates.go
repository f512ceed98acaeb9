// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/danielhkuo/polly/models"
)

// Email template keys
const (
	TemplatePollCreated       = "poll_created"
	TemplateVoteConfirmation  = "vote_confirmation"
	TemplatePollFinalized     = "poll_finalized"
	TemplateDeletionRequested = "deletion_requested"
)

var defaultTemplates = map[string]models.EmailTemplate{
	TemplatePollCreated: {
		Key:     TemplatePollCreated,
		Subject: `Your poll "{{.PollTitle}}" is ready`,
		Body: `Hello {{.Name}},

your poll "{{.PollTitle}}" has been created.

Share this link with participants:
{{.PublicURL}}

Manage the poll (keep this link private):
{{.AdminURL}}
{{if .Expires}}
The poll closes {{.Expires}}.
{{end}}`,
	},
	TemplateVoteConfirmation: {
		Key:     TemplateVoteConfirmation,
		Subject: `Your vote on "{{.PollTitle}}"`,
		Body: `Hello {{.Name}},

thank you for voting on "{{.PollTitle}}".

You can change or withdraw your vote here:
{{.EditURL}}
`,
	},
	TemplatePollFinalized: {
		Key:     TemplatePollFinalized,
		Subject: `"{{.PollTitle}}" has been decided`,
		Body: `Hello,

the poll "{{.PollTitle}}" has been finalized.

Chosen option: {{.OptionText}}

{{.PublicURL}}
`,
	},
	TemplateDeletionRequested: {
		Key:     TemplateDeletionRequested,
		Subject: `Account deletion requested`,
		Body: `Hello {{.Name}},

we received your request to delete your account. An administrator will
process it shortly. Cancel the request from your profile if this was a
mistake.
`,
	},
}

// EmailTemplates returns every template, stored versions over defaults, sorted by key.
func (s *Store) EmailTemplates(ctx context.Context) ([]models.EmailTemplate, error) {
	var stored []models.EmailTemplate
	if err := s.sel(ctx, s.db, &stored, `SELECT key, subject, body, updated_at FROM email_template`); err != nil {
		return nil, fmt.Errorf("failed to query email templates: %w", err)
	}

	byKey := make(map[string]models.EmailTemplate, len(stored))
	for _, t := range stored {
		byKey[t.Key] = t
	}

	templates := make([]models.EmailTemplate, 0, len(defaultTemplates))
	for key, def := range defaultTemplates {
		if t, ok := byKey[key]; ok {
			templates = append(templates, t)
			continue
		}
		templates = append(templates, def)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Key < templates[j].Key })
	return templates, nil
}

// EmailTemplate returns the stored template for key or its default.
func (s *Store) EmailTemplate(ctx context.Context, key string) (*models.EmailTemplate, error) {
	def, ok := defaultTemplates[key]
	if !ok {
		return nil, ErrNotFound
	}

	var t models.EmailTemplate
	err := s.get(ctx, s.db, &t, `SELECT key, subject, body, updated_at FROM email_template WHERE key = ?`, key)
	if errors.Is(err, ErrNotFound) {
		return &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query email template: %w", err)
	}
	return &t, nil
}

// SetEmailTemplate upserts a known template.
func (s *Store) SetEmailTemplate(ctx context.Context, key, subject, body string) (*models.EmailTemplate, error) {
	if _, ok := defaultTemplates[key]; !ok {
		return nil, ErrNotFound
	}

	t := &models.EmailTemplate{Key: key, Subject: subject, Body: body, UpdatedAt: s.now()}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO email_template (key, subject, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET subject = excluded.subject, body = excluded.body, updated_at = excluded.updated_at
	`, t.Key, t.Subject, t.Body, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store email template: %w", err)
	}
	return t, nil
}
