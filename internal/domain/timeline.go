package domain

import "time"

// TimelineEvent описывает событие в жизненном цикле интента или заказа.
type TimelineEvent struct {
	AggregateID string
	Type        string
	Reason      string
	Occurred    time.Time
}
