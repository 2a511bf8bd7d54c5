package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSent   = "sent"
	outcomeFailed = "failed"
)

var (
	producerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_messages_total",
		Help: "Messages handed to the brokers, by topic and outcome (sent, failed).",
	}, []string{"topic", "outcome"})

	producerWriteSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_producer_write_duration_seconds",
		Help:    "WriteMessages latency by topic.",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"topic"})
)
