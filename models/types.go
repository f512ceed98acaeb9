package models

import "time"

// Poll type constants
const (
	PollTypeSchedule     = "schedule"
	PollTypeSurvey       = "survey"
	PollTypeOrganization = "organization"
)

// Vote response constants
const (
	ResponseYes   = "yes"
	ResponseNo    = "no"
	ResponseMaybe = "maybe"
)

// User role constants
const (
	RoleUser    = "user"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

// Theme and language preferences
const (
	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"

	LanguageEN = "en"
	LanguageDE = "de"
)

// Domain types

type User struct {
	ID                  string     `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	Name                string     `db:"name" json:"name"`
	PasswordHash        string     `db:"password_hash" json:"-"` // Never expose in JSON
	Role                string     `db:"role" json:"role"`
	Theme               string     `db:"theme" json:"theme"`
	Language            string     `db:"language" json:"language"`
	DeletionRequestedAt *time.Time `db:"deletion_requested_at" json:"deletion_requested_at,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

func (u *User) HasRole(roles ...string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

type Session struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	UserAgent string    `db:"user_agent"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
}

type Poll struct {
	ID                string     `db:"id" json:"id"`
	Type              string     `db:"type" json:"type"`
	Title             string     `db:"title" json:"title"`
	Description       string     `db:"description" json:"description"`
	CreatorName       string     `db:"creator_name" json:"creator_name"`
	CreatorEmail      *string    `db:"creator_email" json:"-"`
	OwnerID           *string    `db:"owner_id" json:"-"`
	AdminToken        string     `db:"admin_token" json:"-"` // Never expose in JSON
	PublicToken       string     `db:"public_token" json:"public_token"`
	IsActive          bool       `db:"is_active" json:"is_active"`
	ResultsPublic     bool       `db:"results_public" json:"results_public"`
	AllowMaybe        bool       `db:"allow_maybe" json:"allow_maybe"`
	AllowMultiple     bool       `db:"allow_multiple" json:"allow_multiple"`
	ExpiresAt         *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	FinalizedOptionID *string    `db:"finalized_option_id" json:"finalized_option_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the poll's expiry lies in the past at now.
func (p *Poll) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// AcceptsVotes reports whether new votes, edits or withdrawals are allowed.
func (p *Poll) AcceptsVotes(now time.Time) bool {
	return p.IsActive && p.FinalizedOptionID == nil && !p.Expired(now)
}

type PollOption struct {
	ID          string     `db:"id" json:"id"`
	PollID      string     `db:"poll_id" json:"poll_id"`
	Text        string     `db:"text" json:"text"`
	StartTime   *time.Time `db:"start_time" json:"start_time,omitempty"`
	EndTime     *time.Time `db:"end_time" json:"end_time,omitempty"`
	MaxCapacity *int       `db:"max_capacity" json:"max_capacity,omitempty"`
	BookedCount int        `db:"booked_count" json:"booked_count"`
	Position    int        `db:"position" json:"position"`
}

// Remaining returns the free slots of a capacity-limited option, nil otherwise.
func (o *PollOption) Remaining() *int {
	if o.MaxCapacity == nil {
		return nil
	}
	left := *o.MaxCapacity - o.BookedCount
	if left < 0 {
		left = 0
	}
	return &left
}

// PublicOption is an option as participants see it. Yes tallies are left
// out; capacity-limited options expose only their free slots.
type PublicOption struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	MaxCapacity *int       `json:"max_capacity,omitempty"`
	Remaining   *int       `json:"remaining,omitempty"`
	Position    int        `json:"position"`
}

func PublicOptions(options []PollOption) []PublicOption {
	out := make([]PublicOption, len(options))
	for i := range options {
		o := &options[i]
		out[i] = PublicOption{
			ID:          o.ID,
			Text:        o.Text,
			StartTime:   o.StartTime,
			EndTime:     o.EndTime,
			MaxCapacity: o.MaxCapacity,
			Remaining:   o.Remaining(),
			Position:    o.Position,
		}
	}
	return out
}

type Vote struct {
	ID         string    `db:"id" json:"id"`
	PollID     string    `db:"poll_id" json:"poll_id"`
	OptionID   string    `db:"option_id" json:"option_id"`
	VoterName  string    `db:"voter_name" json:"voter_name"`
	VoterEmail *string   `db:"voter_email" json:"voter_email,omitempty"`
	UserID     *string   `db:"user_id" json:"-"`
	Response   string    `db:"response" json:"response"`
	EditToken  string    `db:"edit_token" json:"-"` // Never expose in JSON
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type Setting struct {
	Key       string    `db:"key" json:"key" yaml:"key"`
	Value     string    `db:"value" json:"value" yaml:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at" yaml:"-"`
}

type EmailTemplate struct {
	Key       string    `db:"key" json:"key"`
	Subject   string    `db:"subject" json:"subject"`
	Body      string    `db:"body" json:"body"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Result types

type OptionResult struct {
	OptionID  string `json:"option_id"`
	Text      string `json:"text"`
	Yes       int    `json:"yes"`
	No        int    `json:"no"`
	Maybe     int    `json:"maybe"`
	Remaining *int   `json:"remaining,omitempty"`
}

type PollResults struct {
	Participants int            `json:"participants"`
	Options      []OptionResult `json:"options"`
}

// Request types

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Password string `json:"password" validate:"required,password"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Theme    *string `json:"theme" validate:"omitempty,theme"`
	Language *string `json:"language" validate:"omitempty,language"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password"`
}

type OptionInput struct {
	Text        string     `json:"text" validate:"max=200"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	MaxCapacity *int       `json:"max_capacity" validate:"omitempty,min=1,max=100000"`
}

type CreatePollRequest struct {
	Type          string        `json:"type" validate:"required,polltype"`
	Title         string        `json:"title" validate:"required,min=1,max=200"`
	Description   string        `json:"description" validate:"max=5000"`
	CreatorName   string        `json:"creator_name" validate:"required,min=1,max=100"`
	CreatorEmail  string        `json:"creator_email" validate:"omitempty,email,max=254"`
	ResultsPublic bool          `json:"results_public"`
	AllowMaybe    bool          `json:"allow_maybe"`
	AllowMultiple bool          `json:"allow_multiple"`
	ExpiresAt     *time.Time    `json:"expires_at"`
	Options       []OptionInput `json:"options" validate:"required,min=1,dive"`
}

type UpdatePollRequest struct {
	Title         *string    `json:"title" validate:"omitempty,min=1,max=200"`
	Description   *string    `json:"description" validate:"omitempty,max=5000"`
	ResultsPublic *bool      `json:"results_public"`
	AllowMaybe    *bool      `json:"allow_maybe"`
	AllowMultiple *bool      `json:"allow_multiple"`
	IsActive      *bool      `json:"is_active"`
	ExpiresAt     *time.Time `json:"expires_at"`
	ClearExpiry   bool       `json:"clear_expiry"`
}

type FinalizePollRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}

type VoteInput struct {
	OptionID string `json:"option_id" validate:"required"`
	Response string `json:"response" validate:"required,vresponse"`
}

type SubmitVotesRequest struct {
	VoterName  string      `json:"voter_name" validate:"required,min=1,max=100"`
	VoterEmail string      `json:"voter_email" validate:"omitempty,email,max=254"`
	Votes      []VoteInput `json:"votes" validate:"required,min=1,dive"`
}

type ReplaceVotesRequest struct {
	Votes []VoteInput `json:"votes" validate:"required,min=1,dive"`
}

type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user manager admin"`
}

type UpdateSettingRequest struct {
	Value string `json:"value" validate:"max=2000"`
}

type UpdateEmailTemplateRequest struct {
	Subject string `json:"subject" validate:"required,max=300"`
	Body    string `json:"body" validate:"required,max=20000"`
}

// Response types

type CreatePollResponse struct {
	Poll        Poll         `json:"poll"`
	Options     []PollOption `json:"options"`
	AdminToken  string       `json:"admin_token"`
	PublicToken string       `json:"public_token"`
	AdminURL    string       `json:"admin_url"`
	PublicURL   string       `json:"public_url"`
}

type PublicPollResponse struct {
	Poll    Poll           `json:"poll"`
	Options []PublicOption `json:"options"`
	Results *PollResults   `json:"results,omitempty"`
}

type AdminPollResponse struct {
	Poll       Poll         `json:"poll"`
	Options    []PollOption `json:"options"`
	Results    PollResults  `json:"results"`
	Votes      []Vote       `json:"votes"`
	PublicURL  string       `json:"public_url"`
	AdminToken string       `json:"admin_token"`
}

type VotesResponse struct {
	EditToken string `json:"edit_token"`
	PollID    string `json:"poll_id"`
	Votes     []Vote `json:"votes"`
}

type StatsResponse struct {
	Users        int            `json:"users"`
	Polls        int            `json:"polls"`
	PollsByType  map[string]int `json:"polls_by_type"`
	Votes        int            `json:"votes"`
	ActivePolls  int            `json:"active_polls"`
	PendingUsers int            `json:"pending_deletions"`
}

type ScanResponse struct {
	Clean     bool   `json:"clean"`
	Signature string `json:"signature,omitempty"`
}

// Error response

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
