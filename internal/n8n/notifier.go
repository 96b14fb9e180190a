package n8n

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

// Notification types sent to the notify webhook.
const (
	NotifyAnalysisCompleted     = "analysis_completed"
	NotifyIncomingCallProcessed = "incoming_call_processed"
)

// IncomingCallProcessed announces that an inbound call was dispatched.
type IncomingCallProcessed struct {
	Type     string `json:"type"`
	CallID   string `json:"callId"`
	ReviewID string `json:"reviewId"`
}

// NotifiedCall is the call summary carried by AnalysisCompleted.
type NotifiedCall struct {
	ID           string          `json:"id"`
	DealID       string          `json:"dealId"`
	EmployeeName string          `json:"employeeName"`
	ManagerName  string          `json:"managerName"`
	CreatedAt    time.Time       `json:"createdAt"`
	Payload      json.RawMessage `json:"payload"`
}

// NotifiedItem is one template item carried by AnalysisCompleted.
type NotifiedItem struct {
	Title          string  `json:"title"`
	Description    *string `json:"description"`
	EvaluationType string  `json:"evaluationType"`
	OrderIndex     int     `json:"orderIndex"`
}

// NotifiedTemplate is the template summary carried by AnalysisCompleted.
type NotifiedTemplate struct {
	Title string         `json:"title"`
	Items []NotifiedItem `json:"items"`
}

// AnalysisCompleted announces a finalized review.
type AnalysisCompleted struct {
	Type            string           `json:"type"`
	CallID          string           `json:"callId"`
	ReviewID        string           `json:"reviewId"`
	Status          string           `json:"status"`
	AnalysisResults json.RawMessage  `json:"analysisResults"`
	Call            NotifiedCall     `json:"call"`
	Template        NotifiedTemplate `json:"template"`
	CompletedAt     *time.Time       `json:"completedAt"`
}

// Notifier posts notifications and swallows every failure after logging it.
// A Notifier with an empty URL does nothing.
type Notifier struct {
	Client *Client
	URL    string
}

// Notify posts body to the notify webhook.
func (n *Notifier) Notify(ctx context.Context, body any) {
	if n == nil || n.Client == nil || n.URL == "" {
		return
	}
	resp, err := n.Client.Post(ctx, "notify", n.URL, "", body)
	if err != nil {
		log.Warn().Err(err).Str("url", n.URL).Msg("notify webhook failed")
		return
	}
	if !resp.OK() {
		log.Warn().
			Int("status", resp.Status).
			RawJSON("body", resp.Body).
			Msg("notify webhook answered with error")
	}
}
