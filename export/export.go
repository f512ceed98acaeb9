// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/danielhkuo/polly/models"
)

// OptionLabel is the human label of an option: its text, or its time slot
// for schedule options without text.
func OptionLabel(o models.PollOption) string {
	if o.StartTime == nil {
		return o.Text
	}
	slot := o.StartTime.UTC().Format("2006-01-02 15:04")
	if o.EndTime != nil {
		slot += "-" + o.EndTime.UTC().Format("15:04")
	}
	if o.Text == "" {
		return slot
	}
	return o.Text + " (" + slot + ")"
}

// Participant is one voter's row: their name and a response per option ID.
type Participant struct {
	Name      string
	Email     string
	VotedAt   time.Time
	Responses map[string]string
}

// Participants groups votes by edit token, in first-vote order.
func Participants(votes []models.Vote) []Participant {
	var out []Participant
	index := make(map[string]int)
	for _, v := range votes {
		i, ok := index[v.EditToken]
		if !ok {
			p := Participant{Name: v.VoterName, VotedAt: v.CreatedAt, Responses: map[string]string{}}
			if v.VoterEmail != nil {
				p.Email = *v.VoterEmail
			}
			out = append(out, p)
			i = len(out) - 1
			index[v.EditToken] = i
		}
		out[i].Responses[v.OptionID] = v.Response
	}
	return out
}

// WriteCSV writes one row per participant and a yes/no/maybe total row per
// response kind.
func WriteCSV(w io.Writer, options []models.PollOption, results *models.PollResults, votes []models.Vote) error {
	cw := csv.NewWriter(w)

	header := []string{"participant", "email", "voted_at"}
	for _, o := range options {
		header = append(header, OptionLabel(o))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, p := range Participants(votes) {
		row := []string{p.Name, p.Email, p.VotedAt.UTC().Format(time.RFC3339)}
		for _, o := range options {
			row = append(row, p.Responses[o.ID])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	counts := make(map[string]models.OptionResult, len(results.Options))
	for _, r := range results.Options {
		counts[r.OptionID] = r
	}
	for _, kind := range []string{models.ResponseYes, models.ResponseNo, models.ResponseMaybe} {
		row := []string{"total " + kind, "", ""}
		for _, o := range options {
			r := counts[o.ID]
			n := r.Yes
			switch kind {
			case models.ResponseNo:
				n = r.No
			case models.ResponseMaybe:
				n = r.Maybe
			}
			row = append(row, strconv.Itoa(n))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv totals: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
