package port_reader

import (
	"errors"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/sirupsen/logrus"
)

// Initialize a new Session using the system serial ports.
func NewSession(logger *logrus.Logger) *Session {
	return &Session{
		open:   openSerialPort,
		sleep:  time.Sleep,
		now:    time.Now,
		logger: logger.WithField("component", "port_reader"),
	}
}

// Exchange sends the request command to the meter on path and returns
// whatever it answered within the read timeout. A short answer is not an error.
func (s *Session) Exchange(path string) ([]byte, error) {
	options := serial.OpenOptions{
		PortName:              path,
		BaudRate:              WakeBaudRate,
		DataBits:              DataBits,
		StopBits:              StopBits,
		ParityMode:            serial.PARITY_EVEN,
		InterCharacterTimeout: uint(ReadPollInterval / time.Millisecond),
		MinimumReadSize:       0,
	}

	port, err := s.open(options)
	if err != nil {
		return nil, &TransportError{Kind: OpenFailed, Path: path, Op: "open", Err: err}
	}
	defer func() {
		if err := port.Close(); err != nil {
			s.logger.WithField("path", path).Warnf("Failed to close serial port: %v", err)
		}
	}()

	// The meter wakes up on the slow request but answers at the higher speed.
	if _, err := port.Write(RequestCommand); err != nil {
		return nil, &TransportError{Kind: IOFailed, Path: path, Op: "write", Err: err}
	}
	if err := port.Drain(); err != nil {
		return nil, &TransportError{Kind: IOFailed, Path: path, Op: "drain", Err: err}
	}

	s.sleep(WakeDelay)

	if err := port.SetBaudRate(ResponseBaudRate); err != nil {
		return nil, &TransportError{Kind: IOFailed, Path: path, Op: "set baud rate", Err: err}
	}
	if err := port.FlushInput(); err != nil {
		return nil, &TransportError{Kind: IOFailed, Path: path, Op: "flush input", Err: err}
	}

	return s.readResponse(port, path)
}

func (s *Session) readResponse(port Port, path string) ([]byte, error) {
	response := make([]byte, 0, ResponseLength)
	chunk := make([]byte, ResponseLength)
	deadline := s.now().Add(ReadTimeout)

	// ReadTimeout bounds the whole reply, not the silence between bytes.
	for len(response) < ResponseLength {
		n, err := port.Read(chunk[:ResponseLength-len(response)])
		response = append(response, chunk[:n]...)

		// Reading nothing only means the line was quiet for one poll interval.
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, &TransportError{Kind: IOFailed, Path: path, Op: "read", Err: err}
		}
		if !s.now().Before(deadline) {
			break
		}
	}

	s.logger.WithField("path", path).Debugf("Read %d bytes from meter", len(response))
	return response, nil
}

func openSerialPort(options serial.OpenOptions) (Port, error) {
	rwc, err := serial.Open(options)
	if err != nil {
		return nil, err
	}
	return &ttyPort{ReadWriteCloser: rwc}, nil
}

type ttyPort struct {
	io.ReadWriteCloser
}
