package domain

import "time"

// Notification kinds written to a user's inbox.
const (
	NotifyBetRequest      = "bet_request"
	NotifyBetStatus       = "bet_status"
	NotifyWin             = "win"
	NotifyLoss            = "loss"
	NotifyEvidence        = "evidence"
	NotifyDisputeResolved = "dispute_resolved"
)

// Notification is a single entry in a user's notification inbox.
type Notification struct {
	ID           int64     `json:"id"`
	UserID       string    `json:"userId"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	RelatedBetID string    `json:"relatedBetId,omitempty"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Activity kinds recorded in the shared feed.
const (
	ActivityCreatedBet = "created_bet"
	ActivityUpdatedBet = "updated_bet"
	ActivityWonBet     = "won_bet"
)

// Activity is one entry in the activity feed, attributed to the acting user
// and carrying the privacy level of the bet it concerns.
type Activity struct {
	ID        int64      `json:"id"`
	UserID    string     `json:"userId"`
	Kind      string     `json:"kind"`
	TargetID  string     `json:"targetId"`
	Content   string     `json:"content"`
	Privacy   BetPrivacy `json:"privacy"`
	CreatedAt time.Time  `json:"createdAt"`
}
