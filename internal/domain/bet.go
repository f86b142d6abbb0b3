package domain

import "time"

// BetStatus represents the lifecycle state of a bet.
type BetStatus string

const (
	BetStatusPending   BetStatus = "pending"
	BetStatusActive    BetStatus = "active"
	BetStatusCompleted BetStatus = "completed"
	BetStatusCanceled  BetStatus = "canceled"
	BetStatusDisputed  BetStatus = "disputed"
)

// BetOutcome is the resolved result of a completed bet. It is empty for any
// bet that has not reached the completed status.
type BetOutcome string

const (
	OutcomeWinCreator  BetOutcome = "win_creator"
	OutcomeWinOpponent BetOutcome = "win_opponent"
	OutcomeDraw        BetOutcome = "draw"
	OutcomeVoided      BetOutcome = "voided"
)

// BetPrivacy controls who can see a bet and its activity.
type BetPrivacy string

const (
	PrivacyPublic  BetPrivacy = "public"
	PrivacyFriends BetPrivacy = "friends"
	PrivacyPrivate BetPrivacy = "private"
)

// ParticipantRole tags a user's role within a bet.
type ParticipantRole string

const (
	RoleCreator  ParticipantRole = "creator"
	RoleOpponent ParticipantRole = "opponent"
	RoleWitness  ParticipantRole = "witness"
	RoleJudge    ParticipantRole = "judge"
)

// EvidenceType enumerates the accepted kinds of supporting evidence.
type EvidenceType string

const (
	EvidenceImage EvidenceType = "image"
	EvidenceText  EvidenceType = "text"
	EvidenceLink  EvidenceType = "link"
	EvidenceVideo EvidenceType = "video"
)

// VoteChoice is a community resolution vote on a disputed bet.
type VoteChoice string

const (
	VoteCreatorWins  VoteChoice = "creator_wins"
	VoteOpponentWins VoteChoice = "opponent_wins"
	VoteDraw         VoteChoice = "draw"
	VoteVoid         VoteChoice = "void"
)

// MonetaryStake describes an optional monetary component of a bet.
type MonetaryStake struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Participant is a role-tagged party attached to a bet.
type Participant struct {
	UserID   string          `json:"userId"`
	Username string          `json:"username"`
	Role     ParticipantRole `json:"role"`
	Choice   string          `json:"choice,omitempty"`
	JoinedAt time.Time       `json:"joinedAt"`
}

// Evidence is a single user-submitted supporting item.
type Evidence struct {
	ID          string       `json:"id"`
	UserID      string       `json:"userId"`
	Username    string       `json:"username"`
	Type        EvidenceType `json:"evidenceType"`
	Content     string       `json:"content"`
	SubmittedAt time.Time    `json:"submittedAt"`
}

// Comment is a threaded discussion entry. ParentID references another comment
// in the same bet when the comment is a reply.
type Comment struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	ParentID  string    `json:"parentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Vote is one user's resolution vote. A bet holds at most one vote per user.
type Vote struct {
	UserID   string     `json:"userId"`
	Username string     `json:"username"`
	Choice   VoteChoice `json:"vote"`
	VotedAt  time.Time  `json:"votedAt"`
}

// Bet is a wager between a creator and an (optionally later-joining)
// opponent, together with its embedded evidence/comment/vote ledger.
type Bet struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category,omitempty"`
	CreatorID     string         `json:"creatorId"`
	CreatorName   string         `json:"creatorName,omitempty"`
	OpponentID    string         `json:"opponentId,omitempty"`
	OpponentName  string         `json:"opponentName,omitempty"`
	Stake         string         `json:"stake"`
	IsMonetary    bool           `json:"isMonetary"`
	MonetaryStake *MonetaryStake `json:"monetaryStake,omitempty"`
	Deadline      time.Time      `json:"deadline"`
	Status        BetStatus      `json:"status"`
	Outcome       BetOutcome     `json:"outcome,omitempty"`
	Privacy       BetPrivacy     `json:"privacy"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`

	Participants []Participant `json:"participants"`
	Evidence     []Evidence    `json:"evidence"`
	Comments     []Comment     `json:"comments"`
	Votes        []Vote        `json:"votes"`
}

// betTransitions is the lifecycle adjacency graph. completed and canceled are
// terminal.
var betTransitions = map[BetStatus][]BetStatus{
	BetStatusPending:  {BetStatusActive, BetStatusCanceled},
	BetStatusActive:   {BetStatusCompleted, BetStatusDisputed},
	BetStatusDisputed: {BetStatusCompleted},
}

// CanTransition reports whether a bet may move from one status to another.
func CanTransition(from, to BetStatus) bool {
	for _, next := range betTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known bet status.
func ValidStatus(s BetStatus) bool {
	switch s {
	case BetStatusPending, BetStatusActive, BetStatusCompleted, BetStatusCanceled, BetStatusDisputed:
		return true
	}
	return false
}

// ValidOutcome reports whether o is a known bet outcome.
func ValidOutcome(o BetOutcome) bool {
	switch o {
	case OutcomeWinCreator, OutcomeWinOpponent, OutcomeDraw, OutcomeVoided:
		return true
	}
	return false
}

// ValidEvidenceType reports whether t is an accepted evidence kind.
func ValidEvidenceType(t EvidenceType) bool {
	switch t {
	case EvidenceImage, EvidenceText, EvidenceLink, EvidenceVideo:
		return true
	}
	return false
}

// ValidVoteChoice reports whether c is a known resolution vote.
func ValidVoteChoice(c VoteChoice) bool {
	switch c {
	case VoteCreatorWins, VoteOpponentWins, VoteDraw, VoteVoid:
		return true
	}
	return false
}

// Outcome maps a resolution vote to the bet outcome it selects.
func (c VoteChoice) Outcome() BetOutcome {
	switch c {
	case VoteCreatorWins:
		return OutcomeWinCreator
	case VoteOpponentWins:
		return OutcomeWinOpponent
	case VoteDraw:
		return OutcomeDraw
	case VoteVoid:
		return OutcomeVoided
	}
	return ""
}

// Terminal reports whether the status admits no further transitions.
func (s BetStatus) Terminal() bool {
	return s == BetStatusCompleted || s == BetStatusCanceled
}

// IsParty reports whether the user is the bet's creator or opponent.
func (b *Bet) IsParty(userID string) bool {
	return userID != "" && (userID == b.CreatorID || userID == b.OpponentID)
}

// Counterpart returns the other party's user ID, or "" when the given user is
// not a party or the bet has no opponent yet.
func (b *Bet) Counterpart(userID string) string {
	switch userID {
	case b.CreatorID:
		return b.OpponentID
	case b.OpponentID:
		return b.CreatorID
	}
	return ""
}

// AddParticipant appends a role-tagged participant.
func (b *Bet) AddParticipant(userID, username string, role ParticipantRole, now time.Time) {
	b.Participants = append(b.Participants, Participant{
		UserID:   userID,
		Username: username,
		Role:     role,
		JoinedAt: now,
	})
}

// AppendEvidence validates and appends an evidence entry.
func (b *Bet) AppendEvidence(e Evidence) error {
	if !ValidEvidenceType(e.Type) {
		return ErrInvalidArgument
	}
	if e.UserID == "" || e.Content == "" {
		return ErrInvalidArgument
	}
	b.Evidence = append(b.Evidence, e)
	return nil
}

// AppendComment validates and appends a comment. A non-empty ParentID must
// reference an existing comment in this bet.
func (b *Bet) AppendComment(c Comment) error {
	if c.UserID == "" || c.Content == "" {
		return ErrInvalidArgument
	}
	if c.ParentID != "" && b.findComment(c.ParentID) == nil {
		return ErrInvalidArgument
	}
	b.Comments = append(b.Comments, c)
	return nil
}

func (b *Bet) findComment(id string) *Comment {
	for i := range b.Comments {
		if b.Comments[i].ID == id {
			return &b.Comments[i]
		}
	}
	return nil
}

// PutVote records a resolution vote. A repeat vote from the same user
// overwrites the prior entry in place, so the vote ledger never holds more
// than one entry per voter. It returns true when an existing vote was
// replaced.
func (b *Bet) PutVote(userID, username string, choice VoteChoice, now time.Time) (replaced bool, err error) {
	if userID == "" || !ValidVoteChoice(choice) {
		return false, ErrInvalidArgument
	}
	for i := range b.Votes {
		if b.Votes[i].UserID == userID {
			b.Votes[i].Choice = choice
			b.Votes[i].VotedAt = now
			return true, nil
		}
	}
	b.Votes = append(b.Votes, Vote{
		UserID:   userID,
		Username: username,
		Choice:   choice,
		VotedAt:  now,
	})
	return false, nil
}

// VoteTally is the frequency count of resolution votes on a bet.
type VoteTally struct {
	Counts map[VoteChoice]int
	Total  int
}

// Tally computes the current vote frequencies.
func (b *Bet) Tally() VoteTally {
	t := VoteTally{Counts: make(map[VoteChoice]int, 4)}
	for _, v := range b.Votes {
		t.Counts[v.Choice]++
		t.Total++
	}
	return t
}

// Winner returns the choice that settles the dispute, if any. Resolution
// requires at least minVotes votes and a single leading choice whose share is
// strictly greater than threshold. A tie among leading choices never
// resolves; the bet stays disputed until more votes arrive.
func (t VoteTally) Winner(minVotes int, threshold float64) (VoteChoice, bool) {
	if t.Total < minVotes {
		return "", false
	}

	max := 0
	for _, n := range t.Counts {
		if n > max {
			max = n
		}
	}
	if float64(max)/float64(t.Total) <= threshold {
		return "", false
	}

	var leader VoteChoice
	leaders := 0
	for c, n := range t.Counts {
		if n == max {
			leader = c
			leaders++
		}
	}
	if leaders != 1 {
		return "", false
	}
	return leader, true
}
