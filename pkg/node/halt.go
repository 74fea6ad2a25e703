// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// HaltBlinkPeriod is the indicator period while halted
const HaltBlinkPeriod = 250 * time.Millisecond

// Halt parks a node that cannot run: it logs cause, then blinks ind until
// ctx ends. It returns cause so callers can exit with it.
func Halt(ctx context.Context, ind Indicator, cause error) error {
	log.Error().Err(cause).Msg("node halted")
	if ind == nil {
		<-ctx.Done()
		return cause
	}

	ticker := time.NewTicker(HaltBlinkPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return cause
		case <-ticker.C:
			if err := ind.Toggle(); err != nil {
				log.Error().Err(err).Msg("toggle indicator")
				<-ctx.Done()
				return cause
			}
		}
	}
}
