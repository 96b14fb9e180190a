package services

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/callqa-backend/internal/domain"
	"github.com/tbourn/callqa-backend/internal/events"
	"github.com/tbourn/callqa-backend/internal/rbac"
)

// Clock returns the current time. Services default to time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// requireSession returns the caller or rbac.ErrUnauthorized.
func requireSession(p *domain.Principal) (domain.Principal, error) {
	if p == nil || p.UserID == "" {
		return domain.Principal{}, rbac.ErrUnauthorized
	}
	return *p, nil
}

// publish sends ev and only logs failures.
func publish(ctx context.Context, pub events.Publisher, ev events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("type", ev.Type).Str("call_id", ev.CallID).Msg("publish event failed")
	}
}

// FlexString decodes a JSON string or number into a string. Telephony and
// CRM integrations send numeric ids as often as string ones.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// optString returns nil for an empty string.
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func itoa(n int) string { return strconv.Itoa(n) }
