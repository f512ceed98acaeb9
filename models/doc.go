// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package models defines request, response, and domain types for the API.

# Domain Types

Rows of the relational schema, tagged for both sqlx (db) and JSON:

  - User: account with role (user, manager, admin) and UI preferences
  - Session: server-side login session keyed by the cookie value
  - Poll: schedule, survey, or organization poll with admin/public tokens
  - PollOption: text, optional time range, optional max_capacity
  - Vote: one response (yes, no, maybe) of one voter to one option
  - Setting, EmailTemplate: admin-managed configuration rows

Secrets (password hashes, admin tokens, edit tokens) carry json:"-" and are
only returned through dedicated response fields.

# Request Types

Request structs carry validate tags consumed by the validation package:

	type SubmitVotesRequest struct {
		VoterName string      `json:"voter_name" validate:"required,min=1,max=100"`
		Votes     []VoteInput `json:"votes" validate:"required,min=1,dive"`
	}

# Poll State

A poll accepts votes while it is active, not finalized, and not expired:

	poll.AcceptsVotes(time.Now())
*/
package models
