// Package uart implements the minimal NS16550A-compatible MMIO console
// the QEMU "virt" machine exposes at kmem.UART0. The rest of the kernel
// only ever sees the console as an io.Writer; this is the small, real
// implementation of that collaborator so cmd/kernel has a concrete sink
// to hand to internal/kfmt rather than a stub.
package uart

import "unsafe"

// Register offsets from the UART base, in "DLAB=0" mode.
const (
	regRHR = 0 // receive holding register (read)
	regTHR = 0 // transmit holding register (write)
	regIER = 1 // interrupt enable register
	regFCR = 2 // FIFO control register (write)
	regLCR = 3 // line control register
	regLSR = 5 // line status register
)

const (
	lcrEightBits  = 0x03
	lcrBaudLatch  = 0x80
	fcrFIFOEnable = 0x01
	fcrFIFOClear  = 0x06
	ierTXEnable   = 0x02
	ierRXEnable   = 0x01
	lsrRXReady    = 0x01
	lsrTXIdle     = 0x20
)

// Port drives one NS16550A-compatible MMIO UART at Base.
type Port struct {
	Base uintptr
}

func (p *Port) reg(offset uintptr) *byte {
	return (*byte)(unsafe.Pointer(p.Base + offset))
}

func (p *Port) readReg(offset uintptr) byte     { return *p.reg(offset) }
func (p *Port) writeReg(offset uintptr, v byte) { *p.reg(offset) = v }

// Init programs the baud-rate divisor for 38.4K, 8 data bits / no parity,
// and enables the FIFOs and TX/RX interrupts.
func (p *Port) Init() {
	p.writeReg(regIER, 0x00)
	p.writeReg(regLCR, lcrBaudLatch)
	p.writeReg(0, 0x03) // baud rate LSB
	p.writeReg(1, 0x00) // baud rate MSB
	p.writeReg(regLCR, lcrEightBits)
	p.writeReg(regFCR, fcrFIFOEnable|fcrFIFOClear)
	p.writeReg(regIER, ierTXEnable|ierRXEnable)
}

// PutByte blocks until the transmit holding register is idle, then sends
// one byte.
func (p *Port) PutByte(c byte) {
	for p.readReg(regLSR)&lsrTXIdle == 0 {
	}
	p.writeReg(regTHR, c)
}

// GetByte returns a byte if one is waiting in the receive FIFO, or ok ==
// false if the line is idle.
func (p *Port) GetByte() (c byte, ok bool) {
	if p.readReg(regLSR)&lsrRXReady == 0 {
		return 0, false
	}
	return p.readReg(regRHR), true
}

// Write implements io.Writer, translating '\n' to "\r\n" the way a real
// terminal expects.
func (p *Port) Write(b []byte) (int, error) {
	for _, c := range b {
		if c == '\n' {
			p.PutByte('\r')
		}
		p.PutByte(c)
	}
	return len(b), nil
}
