package notify

import (
	"fmt"

	"subtrack/internal/core"
)

const reminderTitle = "Subscription renewal reminder"

// Formatter renders the title and body shown for a reminder.
type Formatter struct{}

func (Formatter) Title(core.Subscription, core.LeadTime) string {
	return reminderTitle
}

func (Formatter) Body(sub core.Subscription, l core.LeadTime) string {
	return fmt.Sprintf("%s renews %s. Amount: %s %s",
		sub.ServiceName, timingText(l), core.FormatAmount(sub.Amount, sub.Currency), sub.Currency)
}

func timingText(l core.LeadTime) string {
	switch l {
	case core.OneDay:
		return "tomorrow"
	case core.ThreeDays:
		return "in 3 days"
	case core.OneWeek:
		return "in 1 week"
	case core.TwoWeeks:
		return "in 2 weeks"
	default:
		return fmt.Sprintf("in %d days", l.Days())
	}
}
