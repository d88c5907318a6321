// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedProtocolVersion is returned for protocol strings outside v310, v311 and v500.
var ErrUnsupportedProtocolVersion = errors.New("unsupported MQTT protocol version")

// ProtocolVersion identifies the MQTT protocol revision a worker connects with.
type ProtocolVersion byte

// Supported protocol versions. Values are the MQTT protocol level sent in CONNECT.
const (
	V310 ProtocolVersion = 3
	V311 ProtocolVersion = 4
	V500 ProtocolVersion = 5
)

// ParseProtocolVersion parses "v310", "v311" or "v500" (case-insensitive).
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v310":
		return V310, nil
	case "v311":
		return V311, nil
	case "v500":
		return V500, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedProtocolVersion, s)
	}
}

// Level returns the protocol level byte.
func (v ProtocolVersion) Level() byte {
	return byte(v)
}

// Valid reports whether v is one of the supported versions.
func (v ProtocolVersion) Valid() bool {
	return v == V310 || v == V311 || v == V500
}

func (v ProtocolVersion) String() string {
	switch v {
	case V310:
		return "v310"
	case V311:
		return "v311"
	case V500:
		return "v500"
	default:
		return fmt.Sprintf("unknown(%d)", byte(v))
	}
}

// MarshalText implements encoding.TextMarshaler so versions read naturally in YAML and JSON.
// Unsupported versions marshal as an empty string so failed results stay encodable.
func (v ProtocolVersion) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return []byte{}, nil
	}
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty string yields the
// zero version.
func (v *ProtocolVersion) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*v = 0
		return nil
	}
	parsed, err := ParseProtocolVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
