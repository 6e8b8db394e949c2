package progress

import (
	"fmt"
	"time"

	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/lifecycle"
	"gitlab.ozon.dev/pupkingeorgij/ordersync/internal/model"
)

const (
	ArrivingNow = "arriving now"

	DefaultDeliveryTime = 30 * time.Minute
)

type StepStatus string

const (
	Completed StepStatus = "completed"
	Active    StepStatus = "active"
	Pending   StepStatus = "pending"
)

// Sequence is the ordered list of delivery steps.
var Sequence = []lifecycle.Status{lifecycle.Dispatched, lifecycle.InTransit, lifecycle.Delivered}

type Step struct {
	Name   lifecycle.Status `json:"name"`
	Label  string           `json:"label"`
	Status StepStatus       `json:"status"`
	At     model.Time       `json:"at"`
}

type View struct {
	OrderID         string           `json:"order_id"`
	CurrentStatus   lifecycle.Status `json:"current_status"`
	StatusText      string           `json:"status_text,omitempty"`
	Steps           []Step           `json:"steps"`
	ProgressPercent int              `json:"progress_percent"`
	DriverName      string           `json:"driver_name,omitempty"`
	ETA             model.Time       `json:"estimated_arrival"`
	Countdown       string           `json:"countdown,omitempty"`
	Delivered       bool             `json:"delivered"`
	DeliveredAt     model.Time       `json:"delivered_at"`
	Error           string           `json:"error,omitempty"`
}

func indexOf(s lifecycle.Status) int {
	for i, step := range Sequence {
		if step == s {
			return i
		}
	}
	return -1
}

// StepStatusFor places step relative to current. Statuses outside the
// delivery sequence leave every step pending.
func StepStatusFor(step, current lifecycle.Status) StepStatus {
	stepIdx, currentIdx := indexOf(step), indexOf(current)
	switch {
	case currentIdx < 0:
		return Pending
	case stepIdx < currentIdx:
		return Completed
	case stepIdx == currentIdx:
		return Active
	default:
		return Pending
	}
}

func Steps(current lifecycle.Status, timeline *model.Timeline) []Step {
	var tl model.Timeline
	if timeline != nil {
		tl = *timeline
	}
	at := map[lifecycle.Status]model.Time{
		lifecycle.Dispatched: tl.DispatchedAt,
		lifecycle.InTransit:  tl.InTransitAt,
		lifecycle.Delivered:  tl.DeliveredAt,
	}

	steps := make([]Step, len(Sequence))
	for i, s := range Sequence {
		steps[i] = Step{
			Name:   s,
			Label:  lifecycle.Label(s),
			Status: StepStatusFor(s, current),
			At:     at[s],
		}
	}
	return steps
}

// FormatCountdown renders the time left until eta. It never reports a
// negative duration.
func FormatCountdown(eta, now time.Time) string {
	diff := eta.Sub(now)
	if diff <= 0 {
		return ArrivingNow
	}

	minutes := int(diff / time.Minute)
	seconds := int((diff % time.Minute) / time.Second)

	switch {
	case minutes > 60:
		return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%d %s", minutes, plural(minutes, "minute"))
	default:
		return fmt.Sprintf("%d %s", seconds, plural(seconds, "second"))
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

func ProgressPercent(s lifecycle.Status) int {
	switch s {
	case lifecycle.Dispatched:
		return 33
	case lifecycle.InTransit:
		return 66
	case lifecycle.Delivered:
		return 100
	default:
		return 0
	}
}

func StatusText(s lifecycle.Status) string {
	switch s {
	case lifecycle.Dispatched:
		return "Picking up order"
	case lifecycle.InTransit:
		return "On the way"
	case lifecycle.Delivered:
		return "Delivered"
	default:
		return ""
	}
}

// EstimateArrival guesses an arrival time from the order's own timeline when
// the backend has not provided one. The estimated delivery time counts from
// dispatch; once in transit, half of it remains.
func EstimateArrival(o model.Order) (time.Time, bool) {
	if !lifecycle.IsActiveDelivery(o.Status) {
		return time.Time{}, false
	}

	base := DefaultDeliveryTime
	if o.EstimatedDeliveryTime != nil && *o.EstimatedDeliveryTime > 0 {
		base = time.Duration(*o.EstimatedDeliveryTime) * time.Minute
	}

	var tl model.Timeline
	if o.Timeline != nil {
		tl = *o.Timeline
	}

	if o.Status == lifecycle.InTransit && !tl.InTransitAt.IsZero() {
		return tl.InTransitAt.Add(base / 2), true
	}
	if !tl.DispatchedAt.IsZero() {
		return tl.DispatchedAt.Add(base), true
	}
	if ref := o.ObservedAt(); !ref.IsZero() {
		if o.Status == lifecycle.InTransit {
			return ref.Add(base / 2), true
		}
		return ref.Add(base), true
	}
	return time.Time{}, false
}

// Derive builds the progress view of o. A zero eta means none is known.
func Derive(o model.Order, eta time.Time, now time.Time) View {
	v := View{
		OrderID:         o.ID,
		CurrentStatus:   o.Status,
		StatusText:      StatusText(o.Status),
		Steps:           Steps(o.Status, o.Timeline),
		ProgressPercent: ProgressPercent(o.Status),
		DriverName:      model.Deref(o.DriverName),
		Delivered:       o.Status == lifecycle.Delivered,
	}
	if o.Timeline != nil {
		v.DeliveredAt = o.Timeline.DeliveredAt
	}
	if v.Delivered {
		return v
	}
	if !eta.IsZero() {
		v.ETA = model.NewTime(eta)
		v.Countdown = FormatCountdown(eta, now)
	}
	return v
}
