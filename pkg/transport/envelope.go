// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformedEnvelope is returned for datagrams that are not envelopes
var ErrMalformedEnvelope = errors.New("transport: malformed envelope")

// Envelope wraps an HMTL message on packet sockets. On the wire it is a
// CBOR map with integer keys: 0 source, 1 destination, 2 message bytes and
// 3 the sending socket's random origin id.
type Envelope struct {
	Source uint16 `cbor:"0,keyasint"`
	Dest   uint16 `cbor:"1,keyasint"`
	Data   []byte `cbor:"2,keyasint"`
	Origin uint32 `cbor:"3,keyasint,omitempty"`
}

// EncodeEnvelope serializes an envelope
func EncodeEnvelope(e Envelope) ([]byte, error) {
	if len(e.Data) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrMalformedEnvelope)
	}
	data, err := cbor.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses an envelope. It fails for anything that is not a
// CBOR map or that carries no message.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty datagram", ErrMalformedEnvelope)
	}
	var e Envelope
	if err := cbor.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	if len(e.Data) == 0 {
		return Envelope{}, fmt.Errorf("%w: no message", ErrMalformedEnvelope)
	}
	return e, nil
}
