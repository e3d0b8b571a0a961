package uart

import (
	"go.bug.st/serial"
)

// OpenSerial opens a host serial device as UART registers. Programming
// the divisor switches the device to the requested baud rate, 8N1.
func OpenSerial(device string) (*StreamHAL, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, err
	}
	hal := NewStreamHAL("serial:"+device, port)
	hal.OnDivisor = func(d Divisor) error {
		m := *mode
		m.BaudRate = int(d.Baud)
		return port.SetMode(&m)
	}
	return hal, nil
}

// SerialPorts lists the serial devices on the host.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
