package sim

// RegisterTarget models gateware exposing registers over the debug SPI
// port. A transaction is a command word (write flag in the MSB, address
// below it) followed by a register value, both big-endian.
//
// Register 0 is the size negotiation register: reading it returns zeros
// for the command phase and ones for the final register-width bytes.
type RegisterTarget struct {
	CommandBytes  int
	RegisterBytes int
	Registers     map[uint32]uint64

	writes []RegisterWrite
}

// RegisterWrite records one register write.
type RegisterWrite struct {
	Address uint32
	Value   uint64
}

// NewRegisterTarget returns a target with the usual 2-byte command and
// 4-byte register widths and a read-only ID in register 1.
func NewRegisterTarget() *RegisterTarget {
	return &RegisterTarget{
		CommandBytes:  2,
		RegisterBytes: 4,
		Registers: map[uint32]uint64{
			1: 0x54455354, // "TEST"
		},
	}
}

func (t *RegisterTarget) command(tx []byte) (write bool, addr uint32) {
	var cmd uint64
	for _, b := range tx[:t.CommandBytes] {
		cmd = cmd<<8 | uint64(b)
	}
	top := uint64(1) << uint(t.CommandBytes*8-1)
	return cmd&top != 0, uint32(cmd &^ top)
}

// Respond returns the bytes clocked out while tx was clocked in. It depends
// only on bytes already received, so it may be called on a prefix of a
// transaction.
func (t *RegisterTarget) Respond(tx []byte) []byte {
	rx := make([]byte, len(tx))
	if len(tx) <= t.CommandBytes {
		return rx
	}
	write, addr := t.command(tx)
	if write {
		return rx
	}

	if addr == 0 {
		for i := t.CommandBytes; i < len(rx); i++ {
			rx[i] = 0x80
		}
		for i := len(rx) - t.RegisterBytes; i < len(rx); i++ {
			if i >= t.CommandBytes {
				rx[i] = 0xFF
			}
		}
		return rx
	}

	value := t.Registers[addr]
	for i := 0; i < t.RegisterBytes && t.CommandBytes+i < len(rx); i++ {
		shift := uint(8 * (t.RegisterBytes - 1 - i))
		rx[t.CommandBytes+i] = byte(value >> shift)
	}
	return rx
}

// Complete commits a finished transaction.
func (t *RegisterTarget) Complete(tx []byte) {
	if len(tx) < t.CommandBytes+t.RegisterBytes {
		return
	}
	write, addr := t.command(tx)
	if !write || addr == 0 {
		return
	}
	var value uint64
	for _, b := range tx[t.CommandBytes : t.CommandBytes+t.RegisterBytes] {
		value = value<<8 | uint64(b)
	}
	if t.Registers == nil {
		t.Registers = make(map[uint32]uint64)
	}
	t.Registers[addr] = value
	t.writes = append(t.writes, RegisterWrite{Address: addr, Value: value})
}

// Writes returns every committed register write.
func (t *RegisterTarget) Writes() []RegisterWrite {
	return append([]RegisterWrite(nil), t.writes...)
}
