package domain

import "encoding/json"

// User identifies the authenticated operator.
type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Session carries the bearer credential for backend calls. It is threaded
// explicitly through every collaborator; nothing reads it from ambient state.
type Session struct {
	Token     string `json:"token"`
	User      User   `json:"user"`
	CreatedAt string `json:"created_at,omitempty" format:"date-time"`
}

// LogicType combines a rule's conditions.
type LogicType string

const (
	LogicAnd LogicType = "AND"
	LogicOr  LogicType = "OR"
)

// Condition is one field/operator/value leaf of a segment rule.
// LocalID exists only while the rule is being edited, surviving draft
// persistence; it is stripped before submission.
type Condition struct {
	LocalID  string `json:"localId,omitempty"`
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// SegmentRule is a named, persisted predicate over customer attributes.
// The backend stores conditions under the wire name "rules".
type SegmentRule struct {
	ID         string      `json:"id,omitempty"`
	Name       string      `json:"name"`
	LogicType  LogicType   `json:"logicType"`
	Conditions []Condition `json:"rules"`
	CreatedAt  string      `json:"createdAt,omitempty" format:"date-time"`
}

// UnmarshalJSON tolerates Mongo-style "_id" keys.
func (r *SegmentRule) UnmarshalJSON(data []byte) error {
	type alias SegmentRule
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = aux.MongoID
	}
	return nil
}

type Customer struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone,omitempty"`
	Location     string  `json:"location,omitempty"`
	Spend        float64 `json:"spend,omitempty"`
	Visits       int     `json:"visits,omitempty"`
	InactiveDays int     `json:"inactiveDays,omitempty"`
	Orders       int     `json:"orders,omitempty"`
}

func (c *Customer) UnmarshalJSON(data []byte) error {
	type alias Customer
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = aux.MongoID
	}
	return nil
}

type Order struct {
	ID            string  `json:"id"`
	CustomerEmail string  `json:"customerEmail"`
	Amount        float64 `json:"amount"`
	Date          string  `json:"date,omitempty" format:"date-time"`
}

func (o *Order) UnmarshalJSON(data []byte) error {
	type alias Order
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(o)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = aux.MongoID
	}
	return nil
}

type CampaignStatus string

const (
	CampaignPending    CampaignStatus = "pending"
	CampaignInProgress CampaignStatus = "in_progress"
	CampaignCompleted  CampaignStatus = "completed"
)

// RuleRef references a segment rule from a campaign. The backend may return
// a bare id string or an inlined rule object; a deleted rule leaves only the
// denormalized name behind, which is tolerated rather than treated as an
// error.
type RuleRef struct {
	ID   string
	Name string
}

func (r *RuleRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	var obj struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	if r.ID == "" {
		r.ID = obj.MongoID
	}
	r.Name = obj.Name
	return nil
}

func (r RuleRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}

// Campaign is one named send of a message to the customers resolved from a
// segment rule. Immutable after creation; status transitions are owned by
// the backend and only observed here.
type Campaign struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	SegmentRule RuleRef        `json:"segmentRuleId"`
	SegmentName string         `json:"segmentName,omitempty"`
	Message     string         `json:"message"`
	Intent      string         `json:"intent,omitempty"`
	CustomerIDs []string       `json:"customerIds,omitempty"`
	Status      CampaignStatus `json:"status"`
	CreatedAt   string         `json:"createdAt,omitempty" format:"date-time"`
}

func (c *Campaign) UnmarshalJSON(data []byte) error {
	type alias Campaign
	aux := struct {
		*alias
		MongoID string `json:"_id"`
	}{alias: (*alias)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = aux.MongoID
	}
	return nil
}

// CampaignInput is the payload for campaign creation.
type CampaignInput struct {
	Name          string   `json:"name"`
	SegmentRuleID string   `json:"segmentRuleId"`
	Message       string   `json:"message"`
	Intent        string   `json:"intent"`
	CustomerIDs   []string `json:"customerIds"`
}

// CampaignStats is the read-only delivery aggregate for one campaign.
type CampaignStats struct {
	Name      string         `json:"name"`
	Message   string         `json:"message"`
	Status    CampaignStatus `json:"status,omitempty"`
	Total     int            `json:"total"`
	Delivered int            `json:"delivered"`
	Pending   int            `json:"pending"`
	Failed    int            `json:"failed"`
	Summary   string         `json:"summary,omitempty"`
	CreatedAt string         `json:"createdAt,omitempty" format:"date-time"`
}

// Activity is one entry in the local operator activity log.
type Activity struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	Subject string `json:"subject,omitempty"`
	Detail  string `json:"detail,omitempty"`
}
