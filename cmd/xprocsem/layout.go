package main

import (
	"context"
	"fmt"

	"github.com/khaaliswooden-max/xproc/internal/config"
	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/ipcsync"
)

func runLayout(_ context.Context, _ *config.Config, _ *procenv.Env) error {
	fmt.Print(ipcsync.BlockLayout().String())
	return nil
}
