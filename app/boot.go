//go:build !(tinygo && bootdebug)

package app

import (
	"context"

	"rmk/hal"
)

func bootStep(h hal.HAL, msg string) {}

func bootDiagStart(ctx context.Context, h hal.HAL) {}
