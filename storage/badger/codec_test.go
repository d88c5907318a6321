// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package badger

import (
	"fmt"
	"sync"
	"testing"

	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := results.Result{ID: fmt.Sprintf("run-%d", i), Broker: "fluxmq", Scenario: scenario.Scenario{Version: scenario.V500}, Status: results.StatusSuccess, Sent: int64(i)}
			val, err := encode(in)
			if !assert.NoError(t, err) {
				return
			}
			var out results.Result
			if assert.NoError(t, decode(val, &out)) {
				assert.Equal(t, in.ID, out.ID)
				assert.Equal(t, in.Sent, out.Sent)
			}
		}()
	}
	wg.Wait()
}

func TestDecodeCorrupt(t *testing.T) {
	var r results.Result
	err := decode([]byte("not s2"), &r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decompress")
}
