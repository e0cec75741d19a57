// Package mcu assembles the scheduler, the execution loop, and the standard
// peripheral set into one microcontroller.
package mcu

import (
	"github.com/sarchlab/avrcore/irq"
	"github.com/sarchlab/avrcore/sim"
)

// The peripheral identities of the standard machine. They are dense and
// stable; the scheduler, the loop, and snapshots index by them.
const (
	IDTimer0 sim.PeriphID = iota
	IDTimer1
	IDTimer3
	IDTimer4
	IDSPI
	IDADC
	IDPLL
	IDFlash

	NumPeripherals
)

// The interrupt vectors of the standard machine, in priority order.
const (
	VecTimer0Compare irq.Vector = iota
	VecTimer0Overflow
	VecTimer1Compare
	VecTimer1Overflow
	VecTimer3Compare
	VecTimer3Overflow
	VecTimer4Compare
	VecTimer4Overflow
	VecSPIComplete
	VecADCComplete
	VecSPMReady
)

// I/O addresses of the peripheral register blocks.
const (
	AddrTimer0 uint8 = 0x20
	AddrTimer1 uint8 = 0x30
	AddrTimer3 uint8 = 0x40
	AddrTimer4 uint8 = 0x50
	AddrSPI    uint8 = 0x60
	AddrADC    uint8 = 0x70
	AddrPLL    uint8 = 0x78
	AddrFlash  uint8 = 0x79
)
