// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package handlers contains HTTP request handlers for the Polly API.

# Handler Types

Each handler is a struct over a shared Deps value (store, config, metrics,
event publisher, notifier, mailer, virus scanner, self-test runner):

  - AuthHandler: registration, login, logout, current user
  - UserHandler: profile, password, deletion request, own polls
  - PollHandler: poll lifecycle through the public and admin tokens
  - VoteHandler: vote submission and edit-token management
  - AdminHandler: users, polls, stats, settings, email templates,
    self-tests and file scans

	pollHandler := handlers.NewPollHandler(deps)

# Tokens

A poll has two random tokens. The public token is shared with voters:

	GET  /polls/public/{publicToken}         → GetPublicPoll
	POST /polls/public/{publicToken}/votes   → SubmitVotes (returns edit_token)

The admin token is returned once on creation and grants management:

	PATCH /polls/admin/{adminToken}          → UpdatePoll
	POST  /polls/admin/{adminToken}/finalize → Finalize

Voters change or withdraw their answers with the edit token:

	PUT    /votes/{editToken} → ReplaceVotes
	DELETE /votes/{editToken} → WithdrawVotes

Malformed tokens are rejected with 404 before any query runs.

# Side Effects

Mail, chat notifications and events are best effort. Failures are logged
and never change the response. Mail and chat honour the
email_notifications and chat_notifications settings.
*/
package handlers
