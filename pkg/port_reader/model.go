package port_reader

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"
)

// Line settings of the Multical 401 optical head.
// See page 33-36 in 5511-634 GB Rev C1, 4. Data communication.
const (
	WakeBaudRate     uint = 300
	ResponseBaudRate uint = 1200
	DataBits         uint = 7
	StopBits         uint = 2
	ReadTimeout           = 2 * time.Second
	// Longest a single read blocks on a silent line. Keeps the whole read
	// within ReadTimeout plus one slice.
	ReadPollInterval = 200 * time.Millisecond
	WakeDelay        = time.Second
	ResponseLength   = 87
)

// RequestCommand asks the meter for its standard data set.
var RequestCommand = []byte("/#1")

var ErrTransport = errors.New("serial transport failed")

type TransportErrorKind string

const (
	OpenFailed TransportErrorKind = "open_failed"
	IOFailed   TransportErrorKind = "io_failed"
)

type TransportError struct {
	Kind TransportErrorKind
	Path string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s on %s (%s): %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Port is an open serial line that can change speed while open.
type Port interface {
	io.ReadWriteCloser
	SetBaudRate(baud uint) error
	// Drain blocks until all written bytes are transmitted.
	Drain() error
	// FlushInput discards bytes received but not yet read.
	FlushInput() error
}

type Opener func(options serial.OpenOptions) (Port, error)

// Session performs request/response exchanges with the meter.
// It holds no open handle between exchanges.
type Session struct {
	open   Opener
	sleep  func(time.Duration)
	now    func() time.Time
	logger *logrus.Entry
}
