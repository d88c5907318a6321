// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"crypto/tls"
	"fmt"
	"time"
)

// Values used for a dimension that is not being varied.
const (
	DefaultPublishers   = 10
	DefaultSubscribers  = 0
	DefaultMessages     = 1000
	DefaultMessageSize  = 64
	DefaultQoS          = 1
	DefaultRetain       = false
	DefaultCleanSession = false
)

// Target is a broker endpoint scenarios are generated for.
type Target struct {
	Name     string
	Host     string
	Port     int
	Scheme   string
	Username string
	Password string
	TLS      *tls.Config
}

// Matrix holds candidate values per dimension. A dimension contributes its values only
// when its Vary flag is set; otherwise the package default is used.
type Matrix struct {
	Versions      []string
	Publishers    []int
	Subscribers   []int
	Messages      []int
	MessageSizes  []int
	QoS           []int
	Retain        []bool
	CleanSessions []bool

	VaryVersions      bool
	VaryPublishers    bool
	VarySubscribers   bool
	VaryMessages      bool
	VaryMessageSizes  bool
	VaryQoS           bool
	VaryRetain        bool
	VaryCleanSessions bool

	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishRate    float64
}

// Generate expands the matrix into the cartesian product of scenarios for every target.
// Iteration order is target, clean session, version, publishers, messages, size, QoS,
// retain and finally subscribers.
func (m Matrix) Generate(targets []Target) ([]Scenario, error) {
	versions := []ProtocolVersion{V311}
	if m.VaryVersions && len(m.Versions) > 0 {
		versions = versions[:0]
		for _, raw := range m.Versions {
			v, err := ParseProtocolVersion(raw)
			if err != nil {
				return nil, err
			}
			versions = append(versions, v)
		}
	}

	cleans := pick(m.VaryCleanSessions, m.CleanSessions, DefaultCleanSession)
	pubs := pick(m.VaryPublishers, m.Publishers, DefaultPublishers)
	msgs := pick(m.VaryMessages, m.Messages, DefaultMessages)
	sizes := pick(m.VaryMessageSizes, m.MessageSizes, DefaultMessageSize)
	qos := pick(m.VaryQoS, m.QoS, DefaultQoS)
	retains := pick(m.VaryRetain, m.Retain, DefaultRetain)
	subs := pick(m.VarySubscribers, m.Subscribers, DefaultSubscribers)

	var out []Scenario
	for _, t := range targets {
		for _, clean := range cleans {
			for _, v := range versions {
				for _, p := range pubs {
					for _, c := range msgs {
						for _, size := range sizes {
							for _, q := range qos {
								if q < 0 || q > 2 {
									return nil, fmt.Errorf("%w: qos %d not in 0..2", ErrInvalidScenario, q)
								}
								for _, retain := range retains {
									for _, s := range subs {
										sc := Scenario{
											Broker:         t.Name,
											Host:           t.Host,
											Port:           t.Port,
											Scheme:         t.Scheme,
											Username:       t.Username,
											Password:       t.Password,
											TLS:            t.TLS,
											Version:        v,
											CleanSession:   clean,
											KeepAlive:      m.KeepAlive,
											ConnectTimeout: m.ConnectTimeout,
											Publishers:     p,
											Subscribers:    s,
											Messages:       c,
											MessageSize:    size,
											QoS:            byte(q),
											Retain:         retain,
											PublishRate:    m.PublishRate,
										}.WithDefaults()
										if err := sc.Validate(); err != nil {
											return nil, err
										}
										out = append(out, sc)
									}
								}
							}
						}
					}
				}
			}
		}
	}
	return out, nil
}

func pick[T any](vary bool, values []T, def T) []T {
	if vary && len(values) > 0 {
		return values
	}
	return []T{def}
}
