// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
)

// Report metric names, in report order.
const (
	MetricScore           = "Performance Score"
	MetricThroughput      = "Message Throughput (msg/s)"
	MetricReceptionRate   = "Message Reception Rate (msg/s)"
	MetricSuccessRate     = "Message Delivery Success Rate"
	MetricAvgLatency      = "Average Latency (ms)"
	MetricP99Latency      = "P99 Latency (ms)"
	MetricDataTransferred = "Total Data Transferred"
	MetricOutOfOrder      = "Out of Order Messages"
	MetricReconnections   = "Reconnections"
	MetricSent            = "Messages Sent"
	MetricReceived        = "Messages Received"
	MetricConnectTime     = "Connection Time (s)"
	MetricDisconnectTime  = "Disconnection Time (s)"
	MetricCPU             = "CPU Utilization (%)"
	MetricMemory          = "Memory Consumption (MB)"
	MetricLossRate        = "Message Loss Rate"
	MetricElapsed         = "Total Elapsed Time (s)"
	MetricSubscribers     = "Subscribers"
	MetricPerSubscriber   = "Messages per Subscriber"
	metricNotApplicable   = "N/A"
)

// Metrics lists the report metrics in display order.
var Metrics = []string{
	MetricScore,
	MetricThroughput,
	MetricReceptionRate,
	MetricSuccessRate,
	MetricAvgLatency,
	MetricP99Latency,
	MetricDataTransferred,
	MetricOutOfOrder,
	MetricReconnections,
	MetricSent,
	MetricReceived,
	MetricConnectTime,
	MetricDisconnectTime,
	MetricCPU,
	MetricMemory,
	MetricLossRate,
	MetricElapsed,
	MetricSubscribers,
	MetricPerSubscriber,
}

// Metric renders the named metric for a report cell. Unknown names yield "N/A".
func (r Result) Metric(name string) string {
	switch name {
	case MetricScore:
		return whole(r.Score)
	case MetricThroughput:
		return whole(r.ThroughputMPS)
	case MetricReceptionRate:
		return whole(r.ReceptionRateMPS)
	case MetricSuccessRate:
		return percent(r.SuccessRate)
	case MetricAvgLatency:
		return whole(r.AvgLatencyMS)
	case MetricP99Latency:
		return whole(r.P99LatencyMS)
	case MetricDataTransferred:
		return humanize.CommafWithDigits(r.DataTransferred, 2) + " " + r.DataUnit
	case MetricOutOfOrder:
		return humanize.Comma(r.OutOfOrder)
	case MetricReconnections:
		return humanize.Comma(r.Reconnections)
	case MetricSent:
		return humanize.Comma(r.Sent)
	case MetricReceived:
		return humanize.Comma(r.Received)
	case MetricConnectTime:
		return whole(r.ConnectMS / 1000)
	case MetricDisconnectTime:
		return whole(r.DisconnectMS / 1000)
	case MetricCPU:
		return whole(r.CPU)
	case MetricMemory:
		return whole(r.MemoryMB)
	case MetricLossRate:
		return percent(r.LossRate)
	case MetricElapsed:
		return whole(r.ElapsedMS / 1000)
	case MetricSubscribers:
		return humanize.Comma(int64(r.Scenario.Subscribers))
	case MetricPerSubscriber:
		if r.Scenario.Subscribers == 0 {
			return metricNotApplicable
		}
		return whole(float64(r.Received) / float64(r.Scenario.Subscribers))
	default:
		return metricNotApplicable
	}
}

func whole(v float64) string {
	return humanize.Comma(int64(math.Round(v)))
}

func percent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}
