package sim

// SPI NOR commands understood by Flash.
const (
	flashPageProgram = 0x02
	flashReadData    = 0x03
	flashWriteDis    = 0x04
	flashReadStatus  = 0x05
	flashWriteEnable = 0x06
	flashFullErase   = 0x60
	flashReadID      = 0x90

	flashStatusBusy = 1 << 0
	flashStatusWEL  = 1 << 1
)

// Flash models a small SPI NOR configuration flash.
type Flash struct {
	// ID is returned by READ_ID as manufacturer << 8 | device.
	ID uint16
	// EraseBusyPolls is the number of status reads that report busy after a
	// full erase.
	EraseBusyPolls int

	mem  []byte
	wel  bool
	busy int

	commands []byte
}

// NewFlash returns an erased flash of the given size.
func NewFlash(id uint16, size int) *Flash {
	f := &Flash{ID: id, mem: make([]byte, size)}
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

// Transfer performs one chip-select-framed SPI exchange.
func (f *Flash) Transfer(tx []byte) []byte {
	rx := make([]byte, len(tx))
	if len(tx) == 0 {
		return rx
	}
	cmd := tx[0]
	f.commands = append(f.commands, cmd)

	if cmd == flashReadStatus {
		status := f.status()
		if f.busy > 0 {
			f.busy--
		}
		for i := 1; i < len(rx); i++ {
			rx[i] = status
		}
		return rx
	}
	if f.busy > 0 {
		return rx
	}

	switch cmd {
	case flashReadID:
		if len(rx) > 4 {
			rx[4] = byte(f.ID >> 8)
		}
		if len(rx) > 5 {
			rx[5] = byte(f.ID)
		}
	case flashWriteEnable:
		f.wel = true
	case flashWriteDis:
		f.wel = false
	case flashFullErase:
		if !f.wel {
			return rx
		}
		for i := range f.mem {
			f.mem[i] = 0xFF
		}
		f.wel = false
		f.busy = f.EraseBusyPolls
	case flashPageProgram:
		if !f.wel || len(tx) < 4 {
			return rx
		}
		addr := f.address(tx)
		page := addr &^ 0xFF
		for i, b := range tx[4:] {
			// Page programs wrap within the page and can only clear bits.
			a := page | (addr+i)&0xFF
			if a < len(f.mem) {
				f.mem[a] &= b
			}
		}
		f.wel = false
	case flashReadData:
		if len(tx) < 4 {
			return rx
		}
		addr := f.address(tx)
		for i := 4; i < len(rx); i++ {
			rx[i] = f.mem[(addr+i-4)%len(f.mem)]
		}
	}
	return rx
}

func (f *Flash) address(tx []byte) int {
	return (int(tx[1])<<16 | int(tx[2])<<8 | int(tx[3])) % len(f.mem)
}

func (f *Flash) status() byte {
	var s byte
	if f.busy > 0 {
		s |= flashStatusBusy
	}
	if f.wel {
		s |= flashStatusWEL
	}
	return s
}

// Contents returns a copy of the first n bytes of the array.
func (f *Flash) Contents(n int) []byte {
	if n > len(f.mem) {
		n = len(f.mem)
	}
	return append([]byte(nil), f.mem[:n]...)
}

// Load writes data at address 0 without going through SPI.
func (f *Flash) Load(data []byte) {
	copy(f.mem, data)
}

// WriteEnabled reports the write-enable latch.
func (f *Flash) WriteEnabled() bool {
	return f.wel
}

// Commands returns the opcode of every transfer, in order.
func (f *Flash) Commands() []byte {
	return append([]byte(nil), f.commands...)
}
