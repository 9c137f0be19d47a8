package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Payment intent lifecycle
	// ============================================
	PaymentIntentsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitpay_payment_intents_created_total",
			Help: "Total number of payment intents created",
		},
		[]string{"platform"},
	)

	IntentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitpay_intent_transitions_total",
			Help: "Total number of payment intent status transitions",
		},
		[]string{"from", "to"},
	)

	ClaimAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitpay_claim_attempts_total",
			Help: "Total number of claim attempts by outcome",
		},
		[]string{"outcome"}, // claimed, stale, insufficient_quota, rejected
	)

	// ============================================
	// Quota ledger
	// ============================================
	QuotaReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitpay_quota_reservations_total",
			Help: "Total number of quota reservations by state change",
		},
		[]string{"action"}, // reserved, released
	)

	LPLockedQuota = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "unitpay_lp_locked_quota",
			Help: "Currently locked quota per LP",
		},
		[]string{"lp_address"},
	)

	// ============================================
	// Settlement queue
	// ============================================
	SettlementJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitpay_settlement_jobs_processed_total",
			Help: "Total number of settlement jobs processed by outcome",
		},
		[]string{"outcome"}, // settled, retried, failed, skipped
	)

	SettlementDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "unitpay_settlement_duration_seconds",
			Help:    "Wall time from job claim to settled",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	SettlementQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unitpay_settlement_queue_depth",
		Help: "Number of pending settlement jobs",
	})

	// ============================================
	// Timeout sweeper
	// ============================================
	SweeperReclaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitpay_sweeper_reclaims_total",
			Help: "Total number of sweeper actions",
		},
		[]string{"action"}, // reclaimed, cancelled, job_retried, job_failed
	)

	// ============================================
	// Notifications
	// ============================================
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitpay_notifications_sent_total",
			Help: "Total number of notifications published",
		},
		[]string{"event", "transport"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unitpay_notifications_failed_total",
			Help: "Total number of notification publish failures",
		},
		[]string{"event", "transport"},
	)

	// ============================================
	// WebSocket connections
	// ============================================
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unitpay_websocket_connections",
		Help: "Number of active websocket connections",
	})
)
