// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// SummaryLine renders r as one key=value line.
func SummaryLine(r Result) string {
	s := r.Scenario
	line := fmt.Sprintf("id=%s broker=%s status=%s version=%s publishers=%d subscribers=%d messages=%d msg_size=%d qos=%d sent=%d expected=%d received=%d mps_sent=%.2f mps_recv=%.2f loss=%.4f p99_ms=%.2f score=%.2f duration_ms=%.0f",
		r.ID, r.Broker, r.Status, s.Version, s.Publishers, s.Subscribers, s.Messages, s.MessageSize, s.QoS,
		r.Sent, s.ExpectedDeliveries(), r.Received, r.ThroughputMPS, r.ReceptionRateMPS, r.LossRate, r.P99LatencyMS, r.Score, r.ElapsedMS)
	if r.Error != "" {
		line += fmt.Sprintf(" error=%q", r.Error)
	}
	return line
}

// WriteRanking writes the broker ranking as an aligned text table.
func WriteRanking(w io.Writer, rs []Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tBROKER\tAVG SCORE\tRUNS")
	for i, b := range RankBrokers(rs) {
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%d\n", i+1, b.Broker, b.AverageScore, b.Runs)
	}
	return tw.Flush()
}

// WriteTable writes one row per result.
func WriteTable(w io.Writer, rs []Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tBROKER\tSTATUS\tSTARTED\tVERSION\tP/S/C\tQOS\tTHROUGHPUT\tP99 MS\tLOSS\tSCORE")
	for _, r := range rs {
		s := r.Scenario
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d/%d\t%d\t%s\t%s\t%s\t%s\n",
			r.ID, r.Broker, r.Status, r.StartedAt.UTC().Format(time.RFC3339), s.Version,
			s.Publishers, s.Subscribers, s.Messages, s.QoS,
			r.Metric(MetricThroughput), r.Metric(MetricP99Latency), r.Metric(MetricLossRate), r.Metric(MetricScore))
	}
	return tw.Flush()
}
