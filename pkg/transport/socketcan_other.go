// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package transport

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// SocketCAN is only available on Linux.
type SocketCAN struct {
	SetupLink bool
	Bitrate   int
	Logger    *zap.SugaredLogger

	run commandRunner
}

func (s *SocketCAN) Describe() string { return "SocketCAN (unsupported)" }

func (s *SocketCAN) Open(channel string) (Channel, error) {
	return nil, errors.Errorf("SocketCAN %s: only supported on linux (use --interface slcan or ws)", channel)
}
