//go:build linux

package port_reader

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var baudRates = map[uint]uint32{
	300:  unix.B300,
	1200: unix.B1200,
	2400: unix.B2400,
	9600: unix.B9600,
}

func (p *ttyPort) fd() (int, error) {
	f, ok := p.ReadWriteCloser.(*os.File)
	if !ok {
		return 0, fmt.Errorf("serial port is not a tty file")
	}
	return int(f.Fd()), nil
}

func (p *ttyPort) SetBaudRate(baud uint) error {
	speed, ok := baudRates[baud]
	if !ok {
		return fmt.Errorf("unsupported baud rate %d", baud)
	}
	fd, err := p.fd()
	if err != nil {
		return err
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to read termios: %w", err)
	}
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= speed
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to write termios: %w", err)
	}
	return nil
}

// Equivalent of tcdrain().
func (p *ttyPort) Drain() error {
	fd, err := p.fd()
	if err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, unix.TCSBRK, 1)
}

func (p *ttyPort) FlushInput() error {
	fd, err := p.fd()
	if err != nil {
		return err
	}
	return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)
}
