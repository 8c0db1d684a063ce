package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const DefaultBaudRate = 9600

// Config describes how to open a serial port. The line is always 8N1.
type Config struct {
	Name     string
	BaudRate int
}

// SerialSource reads from a serial port with per-call timeouts.
type SerialSource struct {
	name string
	port serial.Port
	// current port read timeout, to avoid a syscall per read
	readTimeout time.Duration
}

// Open opens the port and discards whatever is already waiting in the input buffer.
func Open(cfg Config) (*SerialSource, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Name, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer %s: %w", cfg.Name, err)
	}
	return &SerialSource{name: cfg.Name, port: port, readTimeout: -1}, nil
}

// Name returns the port name.
func (s *SerialSource) Name() string {
	return s.name
}

// ReadTimeout reads until p is full or timeout elapses.
func (s *SerialSource) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	got := 0
	for got < len(p) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := s.setReadTimeout(remaining); err != nil {
			return got, err
		}
		n, err := s.port.Read(p[got:])
		if err != nil {
			return got, fmt.Errorf("read %s: %w", s.name, err)
		}
		if n == 0 {
			// port timeout expired
			break
		}
		got += n
	}
	return got, nil
}

func (s *SerialSource) setReadTimeout(d time.Duration) error {
	// round up so short remainders do not become a non-blocking read
	if d < time.Millisecond {
		d = time.Millisecond
	}
	d = d.Round(time.Millisecond)
	if d == s.readTimeout {
		return nil
	}
	if err := s.port.SetReadTimeout(d); err != nil {
		return fmt.Errorf("set read timeout %s: %w", s.name, err)
	}
	s.readTimeout = d
	return nil
}

// Close implements device.Source.
func (s *SerialSource) Close() error {
	return s.port.Close()
}

// PortInfo describes an available serial port.
type PortInfo struct {
	Name         string
	Description  string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
}

// ListPorts enumerates the serial ports present on the system.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{
			Name:         d.Name,
			Description:  d.Product,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
		}
		if info.Description == "" {
			info.Description = "n/a"
		}
		ports = append(ports, info)
	}
	return ports, nil
}
