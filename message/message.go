// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package message builds the logical message templates of a run and the
// metadata prefix publishers stamp onto every payload.
package message

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/absmach/mqbench/scenario"
)

// HeaderSize is the length of the metadata prefix: 8-byte send timestamp followed
// by a 4-byte sequence number, both little-endian.
const HeaderSize = 12

// Topic layout shared by publishers and subscribers.
const (
	TopicPrefix = "test"
	Filter      = TopicPrefix + "/#"
)

// ErrPayloadDecode is returned when a payload is too short to carry the metadata prefix.
var ErrPayloadDecode = errors.New("malformed payload metadata")

var epoch = time.Now()

// Now returns the send/receive clock reading: nanoseconds since process start on the
// monotonic clock. Values from the same process are directly comparable.
func Now() int64 {
	return int64(time.Since(epoch))
}

// Template is one logical message of a run. Templates are shared read-only by all
// publishers; per-send metadata is never written into them.
type Template struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Generate returns the ordered templates for s: topic test/<i> (1-indexed), a zero
// filled payload of s.MessageSize bytes and the scenario QoS and retain flag.
func Generate(s scenario.Scenario) []Template {
	if s.Messages <= 0 {
		return nil
	}
	// Payload bodies are never mutated, so every template shares one zeroed buffer.
	body := make([]byte, max(s.MessageSize, 0))
	out := make([]Template, s.Messages)
	for i := range out {
		out[i] = Template{
			Topic:   Topic(i + 1),
			Payload: body,
			QoS:     s.QoS,
			Retain:  s.Retain,
		}
	}
	return out
}

// Topic returns the topic of the n-th (1-indexed) template.
func Topic(n int) string {
	return TopicPrefix + "/" + strconv.Itoa(n)
}

// Tag is the metadata carried in front of every published payload.
type Tag struct {
	Timestamp int64
	Sequence  int32
}

// Encode returns the wire form ts‖seq‖body in a new buffer. The transport may hold
// on to a published payload until it is acknowledged, so buffers are not reused.
func Encode(tag Tag, body []byte) []byte {
	out := make([]byte, HeaderSize+len(body))
	binary.LittleEndian.PutUint64(out[0:8], uint64(tag.Timestamp))
	binary.LittleEndian.PutUint32(out[8:12], uint32(tag.Sequence))
	copy(out[HeaderSize:], body)
	return out
}

// Decode reads the metadata prefix of payload.
func Decode(payload []byte) (Tag, error) {
	if len(payload) < HeaderSize {
		return Tag{}, fmt.Errorf("%w: %d bytes, need at least %d", ErrPayloadDecode, len(payload), HeaderSize)
	}
	return Tag{
		Timestamp: int64(binary.LittleEndian.Uint64(payload[0:8])),
		Sequence:  int32(binary.LittleEndian.Uint32(payload[8:12])),
	}, nil
}
