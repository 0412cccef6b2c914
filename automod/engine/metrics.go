package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var classifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "antigcast_classify_duration_sec",
	Help:    "Duration of message classification, including any ruleset fetch",
	Buckets: prometheus.ExponentialBucketsRange(0.00001, 5, 20),
})

var classifyDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "antigcast_classify_decisions",
	Help: "Number of messages classified, by decision reason and suppression",
}, []string{"reason", "suppress"})

var messageProcessCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_messages_processed",
	Help: "Number of messages processed",
})

var messageErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "antigcast_message_errors",
	Help: "Number of messages which failed processing",
}, []string{"kind"})
