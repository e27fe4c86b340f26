package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woomfit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "woomfit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woomfit_bookings_total",
			Help: "Total number of bookings",
		},
		[]string{"status", "payment_method"},
	)

	BookingCancellationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "woomfit_booking_cancellations_total",
			Help: "Total number of booking cancellations",
		},
	)

	PaymentIntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woomfit_payment_intents_total",
			Help: "Payment intent transitions by kind and resulting status",
		},
		[]string{"kind", "status"},
	)

	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woomfit_tbank_webhooks_total",
			Help: "Inbound T-Bank webhook notifications by outcome",
		},
		[]string{"outcome"},
	)

	WalletOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woomfit_wallet_ops_total",
			Help: "Wallet ledger operations by kind",
		},
		[]string{"kind"},
	)

	RentReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woomfit_rent_reservations_total",
			Help: "Rent slot reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "woomfit_notifications_total",
			Help: "Telegram notifications by status",
		},
		[]string{"status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "woomfit_notification_queue_length",
			Help: "Current length of the telegram notification queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(status, paymentMethod string) {
	BookingsTotal.WithLabelValues(status, paymentMethod).Inc()
}

func RecordBookingCancellation() {
	BookingCancellationsTotal.Inc()
}

func RecordPaymentIntent(kind, status string) {
	PaymentIntentsTotal.WithLabelValues(kind, status).Inc()
}

func RecordWebhook(outcome string) {
	WebhooksTotal.WithLabelValues(outcome).Inc()
}

func RecordWalletOp(kind string) {
	WalletOpsTotal.WithLabelValues(kind).Inc()
}

func RecordRentReservation(outcome string) {
	RentReservationsTotal.WithLabelValues(outcome).Inc()
}

func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}
