// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics_test

import (
	"errors"
	"testing"

	"github.com/absmach/mqbench/topics"
)

func TestValidateTopicName(t *testing.T) {
	valid := []string{"test/1", "a", "/leading", "with space/x"}
	invalid := []string{"", "test/+", "test/#", "nul\x00"}

	for _, topic := range valid {
		if err := topics.ValidateTopicName(topic); err != nil {
			t.Errorf("ValidateTopicName(%q) = %v, want nil", topic, err)
		}
	}
	for _, topic := range invalid {
		if err := topics.ValidateTopicName(topic); !errors.Is(err, topics.ErrInvalidTopicName) {
			t.Errorf("ValidateTopicName(%q) = %v, want ErrInvalidTopicName", topic, err)
		}
	}
}

func TestValidateTopicFilter(t *testing.T) {
	valid := []string{"test/#", "#", "+/x/+", "test/1"}
	invalid := []string{"", "test/#/x", "test/a#", "te+st/1"}

	for _, f := range valid {
		if err := topics.ValidateTopicFilter(f); err != nil {
			t.Errorf("ValidateTopicFilter(%q) = %v, want nil", f, err)
		}
	}
	for _, f := range invalid {
		if err := topics.ValidateTopicFilter(f); !errors.Is(err, topics.ErrInvalidTopicFilter) {
			t.Errorf("ValidateTopicFilter(%q) = %v, want ErrInvalidTopicFilter", f, err)
		}
	}
}
