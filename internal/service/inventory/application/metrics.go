package application

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depot_reservations_created_total",
		Help: "Number of reservation legs successfully created.",
	})
	reservationsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depot_reservations_completed_total",
		Help: "Number of reservations committed into sales.",
	})
	reservationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depot_reservations_cancelled_total",
		Help: "Number of reservations released by cancellation.",
	})
	reservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depot_reservations_expired_total",
		Help: "Number of reservations released by the expiry sweeper.",
	})
	insufficientRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depot_insufficient_inventory_total",
		Help: "Number of reserve requests rejected for insufficient inventory.",
	})
	notificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "depot_notification_failures_total",
		Help: "Number of outbound notifications that exhausted their retry budget.",
	})
)
