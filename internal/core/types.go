package core

import "time"

// PageSize is the number of notes requested per comment page.
const PageSize = 25

// ReactionKind identifies an award emoji.
type ReactionKind string

const (
	ReactionThumbsUp   ReactionKind = "thumbsup"
	ReactionThumbsDown ReactionKind = "thumbsdown"
	ReactionLaugh      ReactionKind = "laugh"
	ReactionHooray     ReactionKind = "hooray"
	ReactionConfused   ReactionKind = "confused"
	ReactionHeart      ReactionKind = "heart"
	ReactionRocket     ReactionKind = "rocket"
	ReactionEyes       ReactionKind = "eyes"
)

// ReactionKinds lists every supported reaction in display order.
var ReactionKinds = []ReactionKind{
	ReactionThumbsUp,
	ReactionThumbsDown,
	ReactionLaugh,
	ReactionHooray,
	ReactionConfused,
	ReactionHeart,
	ReactionRocket,
	ReactionEyes,
}

// Valid reports whether k is one of ReactionKinds.
func (k ReactionKind) Valid() bool {
	for _, kind := range ReactionKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// User is a tracker account.
type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Username  string `json:"username"`
	State     string `json:"state,omitempty"`
	AvatarURL string `json:"avatar_url"`
	WebURL    string `json:"web_url"`
}

// Issue is the tracker issue backing a thread.
type Issue struct {
	ID               int64      `json:"id"`
	IID              int64      `json:"iid"`
	ProjectID        int64      `json:"project_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	State            string     `json:"state"`
	Labels           []string   `json:"labels"`
	Author           User       `json:"author"`
	UserNotesCount   int        `json:"user_notes_count"`
	Upvotes          int        `json:"upvotes"`
	Downvotes        int        `json:"downvotes"`
	Confidential     bool       `json:"confidential"`
	DiscussionLocked bool       `json:"discussion_locked"`
	WebURL           string     `json:"web_url,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
}

// IssueComment is a note on an issue.
type IssueComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Author    User      `json:"author"`
	System    bool      `json:"system,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reaction is one user's award emoji on a note.
type Reaction struct {
	ID        int64        `json:"id"`
	Name      ReactionKind `json:"name"`
	User      User         `json:"user"`
	CreatedAt time.Time    `json:"created_at"`
}

// ReactionResult reports what a toggle did.
type ReactionResult struct {
	Reaction *Reaction `json:"reaction"`
	Deleted  bool      `json:"deleted"`
}

// RepoConfig is the per-project widget configuration file.
type RepoConfig struct {
	Origins []string `json:"origins" yaml:"origins"`
}
