// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Validation errors.
var (
	ErrInvalidTopicName   = errors.New("invalid topic name")
	ErrInvalidTopicFilter = errors.New("invalid topic filter")
)

// ValidateTopicName checks a PUBLISH topic: non-empty UTF-8, no wildcards, no NUL.
func ValidateTopicName(topic string) error {
	if topic == "" || !utf8.ValidString(topic) || strings.ContainsAny(topic, "+#\x00") {
		return ErrInvalidTopicName
	}
	return nil
}

// ValidateTopicFilter checks a SUBSCRIBE filter: '+' must occupy a whole level and
// '#' must be the whole last level.
func ValidateTopicFilter(filter string) error {
	if filter == "" || !utf8.ValidString(filter) || strings.Contains(filter, "\x00") {
		return ErrInvalidTopicFilter
	}
	levels := strings.Split(filter, "/")
	for i, l := range levels {
		if strings.Contains(l, "#") && (l != "#" || i != len(levels)-1) {
			return ErrInvalidTopicFilter
		}
		if strings.Contains(l, "+") && l != "+" {
			return ErrInvalidTopicFilter
		}
	}
	return nil
}
