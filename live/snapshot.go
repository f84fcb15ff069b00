/*
snapshot.go - Server overview snapshots and payload normalization

PURPOSE:
  The backend answers an overview request in one of two shapes:

    {"overview": {"capital": ..., "netProfit": ..., "referralEarnings": ..., "deposits": [...]}}
    {"user":     {... same fields, any of them missing ...}}

  The second is the raw user object some deployments return when the
  overview endpoint is unavailable. OverviewPayload records which shape
  arrived, and Normalize is the only place that branches on it.

DEPOSIT JSON:
  Principal comes from "amount" or "capital". Identity from "id" or "_id".
  Timestamps that do not parse are treated as absent, which makes the
  deposit economically inert rather than failing the whole sync.
  Timestamps without a zone are wall-clock time in the location of the
  snapshot's takenAt, which the controller sets to the calculator's.

SEE ALSO:
  - backend/client.go: Decodes HTTP responses into OverviewPayload
  - controller.go: Builds a baseline from the Snapshot
*/
package live

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/yield-engine/generic"
	"github.com/warp/yield-engine/plans"
)

// Snapshot is the authoritative server state at TakenAt. It is never mutated
// after construction.
type Snapshot struct {
	Capital          decimal.Decimal
	NetProfit        decimal.Decimal
	ReferralEarnings decimal.Decimal
	Deposits         []plans.Deposit
	TakenAt          time.Time
}

// PayloadKind identifies which overview shape the server returned.
type PayloadKind int

const (
	PayloadUnknown PayloadKind = iota
	PayloadOverview
	PayloadUser
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadOverview:
		return "overview"
	case PayloadUser:
		return "user"
	}
	return "unknown"
}

// OverviewPayload is the decoded response of the overview endpoint.
type OverviewPayload struct {
	Kind PayloadKind
	Body OverviewBody
}

// OverviewBody carries the fields both shapes share. Missing numbers are zero.
type OverviewBody struct {
	Capital          FlexDecimal   `json:"capital"`
	NetProfit        FlexDecimal   `json:"netProfit"`
	ReferralEarnings FlexDecimal   `json:"referralEarnings"`
	Deposits         []DepositJSON `json:"deposits"`
}

// UnmarshalJSON picks the overview shape when present, else the user shape.
func (p *OverviewPayload) UnmarshalJSON(data []byte) error {
	var envelope struct {
		Overview json.RawMessage `json:"overview"`
		User     json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode overview envelope: %w", err)
	}

	raw, kind := envelope.Overview, PayloadOverview
	if isEmptyJSON(raw) {
		raw, kind = envelope.User, PayloadUser
	}
	if isEmptyJSON(raw) {
		*p = OverviewPayload{}
		return nil
	}

	var body OverviewBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	*p = OverviewPayload{Kind: kind, Body: body}
	return nil
}

// MarshalJSON writes the payload back in the shape it was decoded from.
func (p OverviewPayload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadOverview:
		return json.Marshal(map[string]OverviewBody{"overview": p.Body})
	case PayloadUser:
		return json.Marshal(map[string]OverviewBody{"user": p.Body})
	}
	return []byte("{}"), nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// Normalize converts a payload into a Snapshot taken at takenAt.
// Capital falls back to the sum of active principals when the server omits it.
// Zone-less deposit timestamps are read in the location of takenAt.
func Normalize(p OverviewPayload, takenAt time.Time) (Snapshot, error) {
	switch p.Kind {
	case PayloadOverview, PayloadUser:
	default:
		return Snapshot{}, generic.ErrEmptyOverview
	}

	deposits := make([]plans.Deposit, 0, len(p.Body.Deposits))
	for _, dj := range p.Body.Deposits {
		deposits = append(deposits, dj.DepositIn(takenAt.Location()))
	}

	capital := p.Body.Capital.Decimal
	if !p.Body.Capital.Set {
		capital = plans.Capital(deposits)
	}

	return Snapshot{
		Capital:          capital,
		NetProfit:        p.Body.NetProfit.Decimal,
		ReferralEarnings: p.Body.ReferralEarnings.Decimal,
		Deposits:         deposits,
		TakenAt:          takenAt,
	}, nil
}

// =============================================================================
// DEPOSIT JSON
// =============================================================================

// DepositJSON is a deposit as the backend serializes it.
type DepositJSON struct {
	ID          string      `json:"id,omitempty"`
	LegacyID    string      `json:"_id,omitempty"`
	UserID      string      `json:"userId,omitempty"`
	Amount      FlexDecimal `json:"amount"`
	Capital     FlexDecimal `json:"capital,omitempty"`
	RatePercent FlexDecimal `json:"ratePercent,omitempty"`
	StartDate   FlexTime    `json:"startDate,omitempty"`
	ApprovedAt  FlexTime    `json:"approvedAt,omitempty"`
	EndDate     FlexTime    `json:"endDate,omitempty"`
	Status      string      `json:"status,omitempty"`
	CreatedAt   FlexTime    `json:"createdAt,omitempty"`
}

// DepositIn converts the wire form into a plans.Deposit, reading zone-less
// timestamps as wall-clock time in loc.
func (dj DepositJSON) DepositIn(loc *time.Location) plans.Deposit {
	id := dj.ID
	if id == "" {
		id = dj.LegacyID
	}
	principal := dj.Amount.Decimal
	if !dj.Amount.Set {
		principal = dj.Capital.Decimal
	}
	d := plans.Deposit{
		ID:         generic.DepositID(id),
		UserID:     generic.UserID(dj.UserID),
		Principal:  principal,
		StartDate:  dj.StartDate.In(loc),
		ApprovedAt: dj.ApprovedAt.In(loc),
		EndDate:    dj.EndDate.In(loc),
		Status:     plans.DepositStatus(strings.ToLower(dj.Status)),
	}
	if dj.RatePercent.Set {
		d.RatePercent = decimal.NewNullDecimal(dj.RatePercent.Decimal)
	}
	if t := dj.CreatedAt.In(loc); t != nil {
		d.CreatedAt = *t
	}
	return d
}

// FromDeposit converts a plans.Deposit into its wire form.
func FromDeposit(d plans.Deposit) DepositJSON {
	dj := DepositJSON{
		ID:         string(d.ID),
		UserID:     string(d.UserID),
		Amount:     FlexDecimal{Decimal: d.Principal, Set: true},
		StartDate:  flexTime(d.StartDate),
		ApprovedAt: flexTime(d.ApprovedAt),
		EndDate:    flexTime(d.EndDate),
		Status:     string(d.Status),
	}
	if d.RatePercent.Valid {
		dj.RatePercent = FlexDecimal{Decimal: d.RatePercent.Decimal, Set: true}
	}
	if !d.CreatedAt.IsZero() {
		dj.CreatedAt = FlexTime{Time: d.CreatedAt, Set: true}
	}
	return dj
}

func flexTime(t *time.Time) FlexTime {
	if t == nil || t.IsZero() {
		return FlexTime{}
	}
	return FlexTime{Time: *t, Set: true}
}

// FlexDecimal decodes a JSON number, a numeric string, or null.
type FlexDecimal struct {
	Decimal decimal.Decimal
	Set     bool
}

func (f *FlexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = FlexDecimal{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	*f = FlexDecimal{Decimal: d, Set: true}
	return nil
}

func (f FlexDecimal) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Decimal.String())
}

// FlexTime decodes RFC 3339 timestamps, a few zone-less layouts, or null.
// Anything else decodes as absent. Zone-less input is parsed as UTC with
// Zoneless set; In re-reads it in the caller's location.
type FlexTime struct {
	Time     time.Time
	Set      bool
	Zoneless bool
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (f *FlexTime) UnmarshalJSON(data []byte) error {
	*f = FlexTime{}
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*f = FlexTime{Time: t, Set: true}
		return nil
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*f = FlexTime{Time: t, Set: true, Zoneless: true}
			return nil
		}
	}
	return nil
}

func (f FlexTime) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Time.Format(time.RFC3339Nano))
}

// In returns the time, or nil when absent. A zone-less time keeps its wall
// clock and takes loc (nil = UTC).
func (f FlexTime) In(loc *time.Location) *time.Time {
	t := f.Ptr()
	if t == nil || !f.Zoneless {
		return t
	}
	if loc == nil {
		loc = time.UTC
	}
	local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	return &local
}

// Ptr returns the time, or nil when absent.
func (f FlexTime) Ptr() *time.Time {
	if !f.Set || f.Time.IsZero() {
		return nil
	}
	t := f.Time
	return &t
}
