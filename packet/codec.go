// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package packet

import (
	"github.com/luxfi/codec"
	"github.com/luxfi/codec/linearcodec"
)

const (
	CodecVersion = 0

	// MaxPacketSize is the largest transaction a single packet can carry.
	MaxPacketSize = 1232
)

// Codec serializes transactions and vote instructions.
var Codec codec.Manager

func init() {
	c := linearcodec.NewDefault()

	Codec = codec.NewManager(MaxPacketSize)
	if err := Codec.RegisterCodec(CodecVersion, c); err != nil {
		panic(err)
	}
}
