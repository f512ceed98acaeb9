// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package mailer renders the admin-editable email templates and sends them.

Templates are text/template sources stored per key (poll_created,
vote_confirmation, poll_finalized, deletion_requested) and rendered against
Data. SMTP sends through a relay; Log only logs, for setups without SMTP.
*/
package mailer
