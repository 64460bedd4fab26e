//go:build !linux

package main

import (
	"context"

	"github.com/khaaliswooden-max/xproc/internal/config"
	"github.com/khaaliswooden-max/xproc/internal/procenv"
	"github.com/khaaliswooden-max/xproc/pkg/errors"
)

// The demo passes descriptors with SCM_RIGHTS and relies on the futex
// semaphore; Windows would need a broker to duplicate handles into the child.
func runDemo(context.Context, *config.Config, *procenv.Env) error {
	return errors.Wrap("demo", errors.ErrUnsupported, nil)
}

func runChild(context.Context, *config.Config, *procenv.Env) error {
	return errors.Wrap("demo child", errors.ErrUnsupported, nil)
}
