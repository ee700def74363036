package irq

import "github.com/MelloOS/MelloOS/kernel/cpu"

// 8259 programmable interrupt controller ports and command words.
const (
	picMasterCmd  = 0x20
	picMasterData = 0x21
	picSlaveCmd   = 0xa0
	picSlaveData  = 0xa1

	icw1Init     = 0x11 // begin initialization, expect ICW4
	icw3Cascade  = 0x04 // slave attached to master line 2
	icw3SlaveID  = 0x02
	icw4Mode8086 = 0x01

	picEOI = 0x20
)

// remapPIC reprograms the controller pair so the master delivers its eight
// lines starting at masterOffset and the slave at slaveOffset. Without the
// remap, hardware lines 0-7 collide with CPU exception vectors 8-15.
func remapPIC(masterOffset, slaveOffset uint8) {
	masterMask := cpu.PortReadByte(picMasterData)
	slaveMask := cpu.PortReadByte(picSlaveData)

	cpu.PortWriteByte(picMasterCmd, icw1Init)
	cpu.PortWriteByte(picSlaveCmd, icw1Init)
	cpu.PortWriteByte(picMasterData, masterOffset)
	cpu.PortWriteByte(picSlaveData, slaveOffset)
	cpu.PortWriteByte(picMasterData, icw3Cascade)
	cpu.PortWriteByte(picSlaveData, icw3SlaveID)
	cpu.PortWriteByte(picMasterData, icw4Mode8086)
	cpu.PortWriteByte(picSlaveData, icw4Mode8086)

	cpu.PortWriteByte(picMasterData, masterMask)
	cpu.PortWriteByte(picSlaveData, slaveMask)
}

// maskAll disables delivery on all sixteen controller lines.
func maskAll() {
	cpu.PortWriteByte(picMasterData, 0xff)
	cpu.PortWriteByte(picSlaveData, 0xff)
}

// UnmaskLine enables delivery on one controller line (0-15).
func UnmaskLine(line uint8) {
	if line < 8 {
		mask := cpu.PortReadByte(picMasterData)
		cpu.PortWriteByte(picMasterData, mask&^(1<<line))
		return
	}

	mask := cpu.PortReadByte(picSlaveData)
	cpu.PortWriteByte(picSlaveData, mask&^(1<<(line-8)))
}

// MaskLine disables delivery on one controller line (0-15).
func MaskLine(line uint8) {
	if line < 8 {
		mask := cpu.PortReadByte(picMasterData)
		cpu.PortWriteByte(picMasterData, mask|1<<line)
		return
	}

	mask := cpu.PortReadByte(picSlaveData)
	cpu.PortWriteByte(picSlaveData, mask|1<<(line-8))
}

// Ack signals end-of-interrupt for a controller line. The controller will
// not deliver another interrupt on the same line until it has been
// acknowledged.
func Ack(line uint8) {
	if line >= 8 {
		cpu.PortWriteByte(picSlaveCmd, picEOI)
	}
	cpu.PortWriteByte(picMasterCmd, picEOI)
}
