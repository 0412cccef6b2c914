package recency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var duplicatesSeen = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_recency_duplicates",
	Help: "Number of messages which repeated the previous message in the same chat",
})

var chatsPruned = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_recency_pruned",
	Help: "Number of inactive chats dropped from recency tracking",
})

var chatsTracked = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "antigcast_recency_chats",
	Help: "Number of chats with recency state, as of the last prune",
})
