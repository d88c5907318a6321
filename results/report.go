// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
)

type groupKey struct {
	version     string
	publishers  int
	subscribers int
	messages    int
	size        int
	qos         byte
	retain      bool
}

func keyOf(r Result) groupKey {
	s := r.Scenario
	return groupKey{
		version:     s.Version.String(),
		publishers:  s.Publishers,
		subscribers: s.Subscribers,
		messages:    s.Messages,
		size:        s.MessageSize,
		qos:         s.QoS,
		retain:      s.Retain,
	}
}

// WriteMarkdown writes a markdown report: machine information, the broker ranking,
// and one comparison table per parameter combination followed by its failures.
func WriteMarkdown(w io.Writer, rs []Result, machine string) error {
	bw := bufio.NewWriter(w)
	if len(rs) == 0 {
		fmt.Fprintln(bw, "No results to report.")
		return bw.Flush()
	}

	fmt.Fprintln(bw, "# MQTT Benchmark Results")
	fmt.Fprintln(bw)
	if machine != "" {
		fmt.Fprintln(bw, "## Test Machine Information")
		fmt.Fprintln(bw, machine)
		fmt.Fprintln(bw)
	}

	fmt.Fprintln(bw, "## Broker Performance Ranking")
	fmt.Fprintln(bw, "| Rank | Broker | Average Performance Score | Runs |")
	fmt.Fprintln(bw, "|---|---|---|---|")
	for i, b := range RankBrokers(rs) {
		fmt.Fprintf(bw, "| %d | %s | %.2f | %d |\n", i+1, b.Broker, b.AverageScore, b.Runs)
	}
	fmt.Fprintln(bw)

	var order []groupKey
	groups := map[groupKey][]Result{}
	for _, r := range rs {
		k := keyOf(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	for _, k := range order {
		writeGroup(bw, k, groups[k])
	}
	return bw.Flush()
}

func writeGroup(w io.Writer, k groupKey, rs []Result) {
	fmt.Fprintf(w, "## Protocol Version: %s, Publishers: %d, Subscribers: %d, Messages: %d, Size: %d bytes, QoS: %d, Retain: %t\n\n",
		k.version, k.publishers, k.subscribers, k.messages, k.size, k.qos, k.retain)

	var measured []Result
	var brokers []string
	for _, r := range rs {
		if r.Succeeded() && !slices.Contains(brokers, r.Broker) {
			brokers = append(brokers, r.Broker)
			measured = append(measured, r)
		}
	}

	if len(measured) > 0 {
		fmt.Fprintf(w, "| Metric | %s |\n", strings.Join(brokers, " | "))
		fmt.Fprintf(w, "|--------|%s\n", strings.Repeat("--------|", len(brokers)))
		for _, name := range Metrics {
			cells := make([]string, 0, len(measured))
			for _, r := range measured {
				cells = append(cells, r.Metric(name))
			}
			fmt.Fprintf(w, "| %s | %s |\n", name, strings.Join(cells, " | "))
		}
		fmt.Fprintln(w)
	}

	var failed []string
	for _, r := range rs {
		if r.Succeeded() || slices.Contains(failed, r.Broker) {
			continue
		}
		if len(failed) == 0 {
			fmt.Fprintln(w, "**Benchmark failures were encountered for the following brokers:**")
		}
		failed = append(failed, r.Broker)
		fmt.Fprintf(w, "- **%s:** %s\n", r.Broker, r.Error)
		if last := strings.TrimSpace(r.LastBrokerError); last != "" {
			fmt.Fprintf(w, "  ```\n  %s\n  ```\n", last)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintln(w)
	}
}
