// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"cmp"
	"slices"
)

// Rank returns the measured results ordered by score, best first. Ties are broken by
// broker name. Failed results are left out.
func Rank(rs []Result) []Result {
	out := make([]Result, 0, len(rs))
	for _, r := range rs {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Broker, b.Broker)
	})
	return out
}

// BrokerScore is a broker's average score over its measured runs.
type BrokerScore struct {
	Broker       string  `json:"broker"`
	AverageScore float64 `json:"average_score"`
	Runs         int     `json:"runs"`
}

// RankBrokers averages scores per broker and orders brokers best first.
func RankBrokers(rs []Result) []BrokerScore {
	idx := map[string]int{}
	var out []BrokerScore
	for _, r := range rs {
		if !r.Succeeded() {
			continue
		}
		i, ok := idx[r.Broker]
		if !ok {
			i = len(out)
			idx[r.Broker] = i
			out = append(out, BrokerScore{Broker: r.Broker})
		}
		out[i].AverageScore += r.Score
		out[i].Runs++
	}
	for i := range out {
		out[i].AverageScore = round2(out[i].AverageScore / float64(out[i].Runs))
	}
	slices.SortStableFunc(out, func(a, b BrokerScore) int {
		if c := cmp.Compare(b.AverageScore, a.AverageScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Broker, b.Broker)
	})
	return out
}
