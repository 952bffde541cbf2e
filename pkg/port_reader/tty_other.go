//go:build !linux

package port_reader

import "errors"

var errUnsupportedPlatform = errors.New("changing line settings on an open port is only supported on linux")

func (p *ttyPort) SetBaudRate(baud uint) error { return errUnsupportedPlatform }

func (p *ttyPort) Drain() error { return errUnsupportedPlatform }

func (p *ttyPort) FlushInput() error { return errUnsupportedPlatform }
