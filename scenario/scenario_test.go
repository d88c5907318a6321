// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseProtocolVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    ProtocolVersion
		wantErr bool
	}{
		{"v310", V310, false},
		{"V311", V311, false},
		{" v500 ", V500, false},
		{"v5", 0, true},
		{"", 0, true},
		{"mqtt311", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseProtocolVersion(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedProtocolVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProtocolVersionText(t *testing.T) {
	type wrapper struct {
		Version ProtocolVersion `json:"version" yaml:"version"`
	}

	data, err := json.Marshal(wrapper{Version: V500})
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"v500"}`, string(data))

	var w wrapper
	require.NoError(t, yaml.Unmarshal([]byte("version: v310\n"), &w))
	assert.Equal(t, V310, w.Version)
	assert.Equal(t, byte(3), w.Version.Level())

	err = yaml.Unmarshal([]byte("version: v400\n"), &w)
	assert.ErrorIs(t, err, ErrUnsupportedProtocolVersion)

	text, err := ProtocolVersion(9).MarshalText()
	require.NoError(t, err)
	assert.Empty(t, text)

	data, err = json.Marshal(wrapper{Version: ProtocolVersion(9)})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &w))
	assert.Equal(t, ProtocolVersion(0), w.Version)
}

func validScenario() Scenario {
	return Scenario{
		Broker:      "fluxmq",
		Host:        "localhost",
		Port:        1883,
		Version:     V311,
		Publishers:  2,
		Subscribers: 1,
		Messages:    10,
		MessageSize: 64,
		QoS:         1,
	}.WithDefaults()
}

func TestScenarioValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Scenario)
		wantErr error
	}{
		{"valid", func(s *Scenario) {}, nil},
		{"zero counts are valid", func(s *Scenario) { s.Publishers, s.Subscribers, s.Messages, s.MessageSize = 0, 0, 0, 0 }, nil},
		{"empty host", func(s *Scenario) { s.Host = "" }, ErrInvalidScenario},
		{"bad port", func(s *Scenario) { s.Port = 70000 }, ErrInvalidScenario},
		{"bad version", func(s *Scenario) { s.Version = 7 }, ErrUnsupportedProtocolVersion},
		{"negative publishers", func(s *Scenario) { s.Publishers = -1 }, ErrInvalidScenario},
		{"negative size", func(s *Scenario) { s.MessageSize = -5 }, ErrInvalidScenario},
		{"qos 3", func(s *Scenario) { s.QoS = 3 }, ErrInvalidScenario},
		{"unknown scheme", func(s *Scenario) { s.Scheme = "quic" }, ErrInvalidScenario},
		{"negative rate", func(s *Scenario) { s.PublishRate = -1 }, ErrInvalidScenario},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validScenario()
			tt.modify(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestScenarioDerived(t *testing.T) {
	s := validScenario()
	assert.Equal(t, 3, s.Workers())
	assert.Equal(t, int64(20), s.TotalSends())
	assert.Equal(t, int64(20), s.ExpectedDeliveries())
	assert.Equal(t, "localhost:1883", s.Addr())
	assert.Equal(t, "tcp://localhost:1883", s.URL())

	s.Scheme = "ws"
	assert.Equal(t, "ws://localhost:1883", s.URL())

	var empty Scenario
	empty = empty.WithDefaults()
	assert.Equal(t, DefaultKeepAlive, empty.KeepAlive)
	assert.Equal(t, DefaultConnectTimeout, empty.ConnectTimeout)
	assert.Equal(t, V311, empty.Version)
}
