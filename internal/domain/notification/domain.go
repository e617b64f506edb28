package notification

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
	ChannelWhatsApp Channel = "whatsapp"
)

// Type is open-ended: unknown values are accepted and rendered with the
// generic fallback message.
type Type string

const (
	TypeSOSMatch      Type = "sos_match"
	TypeSOSRequest    Type = "sos_request"
	TypeDisasterAlert Type = "disaster_alert"
	TypeMatchAccepted Type = "match_accepted"
)

type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// FailKind classifies a per-channel delivery failure. Aggregation treats
// all kinds the same; the kind is kept for observability.
type FailKind string

const (
	FailConfigMissing FailKind = "config_missing"
	FailTargetMissing FailKind = "target_missing"
	FailProvider      FailKind = "provider_error"
	FailTimeout       FailKind = "timeout"
)

// ChannelResult is the settled outcome of one delivery attempt on one channel.
type ChannelResult struct {
	Outcome  Outcome   `json:"outcome"`
	Ref      string    `json:"ref,omitempty"`
	Error    string    `json:"error,omitempty"`
	FailKind FailKind  `json:"fail_kind,omitempty"`
	At       time.Time `json:"at"`
}

type Notification struct {
	ID             string                    `json:"notificationId"`
	RecipientID    string                    `json:"recipientId"`
	RecipientPhone string                    `json:"recipientPhone,omitempty"`
	Type           Type                      `json:"type"`
	Priority       Priority                  `json:"priority"`
	Channels       []Channel                 `json:"channels"`
	Message        string                    `json:"message"`
	Payload        map[string]any            `json:"payload,omitempty"`
	Status         Status                    `json:"status"`
	ChannelStatus  map[Channel]ChannelResult `json:"channelStatus,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
	SentAt         *time.Time                `json:"sentAt,omitempty"`
	FailedAt       *time.Time                `json:"failedAt,omitempty"`
}

// StatusPatch finalizes a pending notification. The store applies it as a
// single atomic update, and only while the row is still pending.
type StatusPatch struct {
	Status        Status
	ChannelStatus map[Channel]ChannelResult
	At            time.Time
}

func DefaultChannels() []Channel { return []Channel{ChannelSMS, ChannelPush} }
