package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messagesReceived = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_consumer_messages_received",
	Help: "Number of group messages received from the platform",
})

var pollErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "antigcast_consumer_poll_errors",
	Help: "Number of failed update polling requests",
})

var commandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "antigcast_consumer_commands",
	Help: "Number of admin commands handled, by status",
}, []string{"status"})

var deletesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "antigcast_consumer_deletes",
	Help: "Number of message deletions attempted, by status",
}, []string{"status"})
