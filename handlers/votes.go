// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/danielhkuo/polly/auth"
	"github.com/danielhkuo/polly/events"
	"github.com/danielhkuo/polly/export"
	"github.com/danielhkuo/polly/mailer"
	"github.com/danielhkuo/polly/metrics"
	"github.com/danielhkuo/polly/middleware"
	"github.com/danielhkuo/polly/models"
	"github.com/danielhkuo/polly/store"
)

type VoteHandler struct {
	d Deps
}

func NewVoteHandler(d Deps) *VoteHandler {
	return &VoteHandler{d: d.withDefaults()}
}

// rejectReason is the metrics label for a refused submission, "" for
// errors that are not the voter's doing.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInvalidVote):
		return metrics.ReasonInvalid
	case errors.Is(err, store.ErrNotAcceptingVotes):
		return metrics.ReasonClosed
	case errors.Is(err, store.ErrCapacityExceeded):
		return metrics.ReasonFull
	case errors.Is(err, store.ErrAlreadyVoted):
		return metrics.ReasonDuplicate
	}
	return ""
}

func (h *VoteHandler) voteError(w http.ResponseWriter, err error, action string) {
	if reason := rejectReason(err); reason != "" {
		h.d.Metrics.VotesRejected.WithLabelValues(reason).Inc()
	}
	storeError(w, err, action)
}

// SubmitVotes handles POST /polls/public/{publicToken}/votes
func (h *VoteHandler) SubmitVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := lookupPoll(w, r, chi.URLParam(r, "publicToken"), h.d.Store.GetPollByPublicToken)
	if !ok {
		return
	}

	var req models.SubmitVotesRequest
	if !decode(w, r, &req) {
		h.d.Metrics.VotesRejected.WithLabelValues(metrics.ReasonInvalid).Inc()
		return
	}

	sub := store.VoteSubmission{VoterName: req.VoterName, VoterEmail: req.VoterEmail, Votes: req.Votes}
	if user := middleware.UserFromContext(ctx); user != nil {
		sub.UserID = &user.ID
		if sub.VoterEmail == "" {
			sub.VoterEmail = user.Email
		}
	}

	res, err := h.d.Store.SubmitVotes(ctx, p.ID, sub)
	if err != nil {
		h.voteError(w, err, "submit votes")
		return
	}

	h.d.Metrics.VotesAccepted.WithLabelValues(p.Type).Inc()
	slog.Info("votes submitted", "poll_id", p.ID, "votes", len(res.Votes))

	h.announceFull(r, p, res.FilledOptions)
	emitPollEvent(ctx, h.d, events.VoteSubmitted, p)
	if email := res.Votes[0].VoterEmail; email != nil {
		sendMail(ctx, h.d, store.TemplateVoteConfirmation, mailer.Data{
			Name:      res.Votes[0].VoterName,
			PollTitle: p.Title,
			PublicURL: publicURL(h.d.Config, p),
			EditURL:   editURL(h.d.Config, res.EditToken),
		}, *email)
	}

	middleware.JSONResponse(w, http.StatusCreated, models.VotesResponse{
		EditToken: res.EditToken,
		PollID:    res.PollID,
		Votes:     res.Votes,
	})
}

// announceFull tells the chat rooms about options that just ran out of seats.
func (h *VoteHandler) announceFull(r *http.Request, p *models.Poll, filled []models.PollOption) {
	for _, o := range filled {
		chat(r.Context(), h.d, fmt.Sprintf("%q on poll %q is now fully booked", export.OptionLabel(o), p.Title))
	}
}

func editToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := chi.URLParam(r, "editToken")
	if err := auth.ValidateToken(token); err != nil {
		middleware.ErrorResponse(w, http.StatusNotFound, "Votes not found")
		return "", false
	}
	return token, true
}

// GetVotes handles GET /votes/{editToken}
func (h *VoteHandler) GetVotes(w http.ResponseWriter, r *http.Request) {
	token, ok := editToken(w, r)
	if !ok {
		return
	}

	votes, err := h.d.Store.VotesByEditToken(r.Context(), token)
	if err != nil {
		storeError(w, err, "load votes")
		return
	}
	middleware.JSONResponse(w, http.StatusOK, models.VotesResponse{
		EditToken: token,
		PollID:    votes[0].PollID,
		Votes:     votes,
	})
}

// ReplaceVotes handles PUT /votes/{editToken}
func (h *VoteHandler) ReplaceVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := editToken(w, r)
	if !ok {
		return
	}

	var req models.ReplaceVotesRequest
	if !decode(w, r, &req) {
		h.d.Metrics.VotesRejected.WithLabelValues(metrics.ReasonInvalid).Inc()
		return
	}

	res, err := h.d.Store.ReplaceVotes(ctx, token, req.Votes)
	if err != nil {
		h.voteError(w, err, "update votes")
		return
	}

	if p, err := h.d.Store.GetPoll(ctx, res.PollID); err == nil {
		h.announceFull(r, p, res.FilledOptions)
		emitPollEvent(ctx, h.d, events.VoteUpdated, p)
	}
	slog.Info("votes updated", "poll_id", res.PollID, "votes", len(res.Votes))

	middleware.JSONResponse(w, http.StatusOK, models.VotesResponse{
		EditToken: token,
		PollID:    res.PollID,
		Votes:     res.Votes,
	})
}

// WithdrawVotes handles DELETE /votes/{editToken}
func (h *VoteHandler) WithdrawVotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := editToken(w, r)
	if !ok {
		return
	}

	pollID, err := h.d.Store.WithdrawVotes(ctx, token)
	if err != nil {
		storeError(w, err, "withdraw votes")
		return
	}

	if p, err := h.d.Store.GetPoll(ctx, pollID); err == nil {
		emitPollEvent(ctx, h.d, events.VoteWithdrawn, p)
	}
	slog.Info("votes withdrawn", "poll_id", pollID)
	w.WriteHeader(http.StatusNoContent)
}
