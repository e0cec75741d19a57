package mcu

import (
	"log"

	"github.com/sarchlab/avrcore/cpu"
	"github.com/sarchlab/avrcore/periph/adc"
	"github.com/sarchlab/avrcore/periph/spi"
	"github.com/sarchlab/avrcore/sim"
)

// Builder constructs fully wired machines.
type Builder struct {
	src         cpu.InstructionSource
	transfer    spi.Transfer
	sampler     adc.Sampler
	batchCycles sim.Cycle
}

// MakeBuilder returns a Builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		batchCycles: cpu.DefaultBatchCycles,
	}
}

// WithInstructionSource sets the instruction stream the machine executes.
// A source is required.
func (b Builder) WithInstructionSource(src cpu.InstructionSource) Builder {
	b.src = src
	return b
}

// WithSPITransfer sets the far end of the SPI wire.
func (b Builder) WithSPITransfer(t spi.Transfer) Builder {
	b.transfer = t
	return b
}

// WithADCSampler sets the analog input source of the ADC.
func (b Builder) WithADCSampler(s adc.Sampler) Builder {
	b.sampler = s
	return b
}

// WithBatchCycles sets the maximum number of cycles the loop executes
// between scheduler checks.
func (b Builder) WithBatchCycles(n sim.Cycle) Builder {
	b.batchCycles = n
	return b
}

// Build constructs a machine.
func (b Builder) Build() *Machine {
	if b.src == nil {
		log.Panic("an instruction source must be set before building")
	}

	m := &Machine{}
	m.wire(b.src, b.transfer, b.sampler)
	m.loop.SetBatchCycles(b.batchCycles)

	return m
}
