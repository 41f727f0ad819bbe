package models

// Direction is the store-defined message box a row belongs to.
type Direction int

const (
	DirectionOther    Direction = 0
	DirectionInbound  Direction = 1
	DirectionOutbound Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirectionInbound:
		return "inbound"
	case DirectionOutbound:
		return "outbound"
	default:
		return "other"
	}
}

// Message represents one inbox row as read from the message store
type Message struct {
	ID      string    `json:"id"`
	Address string    `json:"address"`
	Body    string    `json:"body"`
	Date    int64     `json:"date"`
	Type    Direction `json:"type"`
}

const (
	DefaultLimit = 100
	DefaultDays  = 30

	DayMillis int64 = 24 * 60 * 60 * 1000
)

// QueryParams controls a retrieval query
type QueryParams struct {
	Limit    int   `json:"limit"`
	Since    int64 `json:"since"`
	BankOnly bool  `json:"bank_only"`
}

// Normalize fills in the default limit. Since is an exclusive bound and is
// kept as given, negative values included.
func (p QueryParams) Normalize() QueryParams {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	return p
}

type Origin string

const (
	OriginLive Origin = "live"
	OriginPoll Origin = "poll"
)

// Notification is what the push path hands to downstream sinks
type Notification struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id,omitempty"`
	Address   string `json:"address"`
	Body      string `json:"body"`
	Date      int64  `json:"date"`
	Origin    Origin `json:"origin"`
}
