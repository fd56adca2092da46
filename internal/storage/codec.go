// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// codec.go - CBOR encoding of message metrics and images.

package storage

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/jeranaias/navstream/internal/model"
)

// extra holds the optional message fields stored in the blob column.
type extra struct {
	Images  []model.ImageRef `cbor:"1,keyasint,omitempty"`
	Metrics *model.Metrics   `cbor:"2,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Time: cbor.TimeRFC3339Nano,
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("storage: invalid cbor encoding options: %v", err))
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("storage: invalid cbor decoding options: %v", err))
	}
}

// encodeExtra returns nil when the message has no optional fields.
func encodeExtra(m *model.Message) ([]byte, error) {
	if len(m.Images) == 0 && m.Metrics == nil {
		return nil, nil
	}
	data, err := encMode.Marshal(extra{Images: m.Images, Metrics: m.Metrics})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message extras: %w", err)
	}
	return data, nil
}

func decodeExtra(data []byte, m *model.Message) error {
	if len(data) == 0 {
		return nil
	}
	var x extra
	if err := decMode.Unmarshal(data, &x); err != nil {
		return fmt.Errorf("failed to decode message extras: %w", err)
	}
	m.Images = x.Images
	m.Metrics = x.Metrics
	return nil
}
