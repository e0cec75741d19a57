package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/avrcore/cpu"
	"github.com/sarchlab/avrcore/mcu"
	"github.com/sarchlab/avrcore/monitoring"
	"github.com/sarchlab/avrcore/sim"
	"github.com/sarchlab/avrcore/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo firmware.",
	Long: `Run a small built-in firmware that programs the timers, the ADC, ` +
		`the PLL, and the SPI unit, then spins while serving interrupts.`,
	Run: runDemo,
}

func init() {
	runCmd.Flags().Uint64("cycles",
		envUint64("CYCLES", 10_000_000),
		"number of cycles to emulate")
	runCmd.Flags().Uint64("batch",
		envUint64("BATCH", cpu.DefaultBatchCycles),
		"batch cap in cycles")
	runCmd.Flags().String("trace-csv",
		envString("TRACE_CSV", ""),
		"write a task trace to this CSV file")
	runCmd.Flags().String("trace-sqlite",
		envString("TRACE_SQLITE", ""),
		"write a task trace to this SQLite database")
	runCmd.Flags().Bool("monitor", false,
		"start the monitoring server")
	runCmd.Flags().Uint64("monitor-port",
		envUint64("MONITOR_PORT", 0),
		"port of the monitoring server, 0 picks a random port")
	runCmd.Flags().Bool("browser", false,
		"open the monitoring dashboard in the default browser")

	rootCmd.AddCommand(runCmd)
}

func runDemo(cmd *cobra.Command, _ []string) {
	cycles, _ := cmd.Flags().GetUint64("cycles")
	batch, _ := cmd.Flags().GetUint64("batch")

	firmware := newDemoFirmware()

	machine := mcu.MakeBuilder().
		WithInstructionSource(firmware).
		WithBatchCycles(sim.Cycle(batch)).
		WithSPITransfer(func(out uint8) uint8 { return out + 1 }).
		WithADCSampler(func(channel uint8) uint16 {
			return uint16(channel)<<7 | 0x155
		}).
		Build()
	firmware.attach(machine)

	setUpTracing(cmd, machine)
	monitor := setUpMonitoring(cmd, machine)

	runCycles(machine, monitor, sim.Cycle(cycles))

	reportStats(machine, firmware)
	atexit.Exit(0)
}

// runCycles runs the machine for the given number of cycles. When a monitor
// is attached, the run is split into steps so that the dashboard shows a
// progress bar advancing with the emulation.
func runCycles(
	machine *mcu.Machine,
	monitor *monitoring.Monitor,
	cycles sim.Cycle,
) {
	loop := machine.Loop()

	if monitor == nil {
		loop.RunUntil(cycles)
		return
	}

	bar := monitor.CreateProgressBar("Emulation", uint64(cycles))
	defer monitor.CompleteProgressBar(bar)

	step := cycles / 100
	if step == 0 {
		step = 1
	}

	for loop.Now() < cycles {
		target := loop.Now() + step
		if target > cycles {
			target = cycles
		}

		before := loop.Now()
		loop.RunUntil(target)
		bar.IncrementFinished(uint64(loop.Now() - before))
	}
}

func setUpTracing(cmd *cobra.Command, machine *mcu.Machine) {
	csvPath, _ := cmd.Flags().GetString("trace-csv")
	sqlitePath, _ := cmd.Flags().GetString("trace-sqlite")

	if csvPath == "" && sqlitePath == "" {
		return
	}

	tracing.TraceLoop(machine.Loop())

	if csvPath != "" {
		backend := tracing.NewCSVTracerBackend(csvPath)
		tracer := tracing.NewDBTracer(machine.Loop(), backend)
		tracing.CollectTrace(tracer, machine.Loop())
	}

	if sqlitePath != "" {
		backend := tracing.NewSQLiteTracerBackend(sqlitePath)
		tracer := tracing.NewDBTracer(machine.Loop(), backend)
		tracing.CollectTrace(tracer, machine.Loop())
	}
}

func setUpMonitoring(
	cmd *cobra.Command,
	machine *mcu.Machine,
) *monitoring.Monitor {
	enabled, _ := cmd.Flags().GetBool("monitor")
	openBrowser, _ := cmd.Flags().GetBool("browser")
	if !enabled && !openBrowser {
		return nil
	}

	monitor := monitoring.NewMonitor()
	monitor.RegisterMachine(machine)

	port, _ := cmd.Flags().GetUint64("monitor-port")
	if port > 0 {
		monitor.WithPortNumber(int(port))
	}

	if openBrowser {
		monitor.WithBrowser()
	}

	monitor.StartServer()

	return monitor
}

func reportStats(machine *mcu.Machine, firmware *demoFirmware) {
	fmt.Printf("emulated %d cycles\n", machine.Loop().Now())
	fmt.Printf("served %d interrupts\n", firmware.totalInterrupts())

	names := map[sim.PeriphID]string{}
	for _, p := range machine.Peripherals() {
		names[p.ID()] = p.Name()
	}

	for _, e := range machine.Scheduler().Entries() {
		fmt.Printf("next %s event at cycle %d\n", names[e.ID], e.Cycle)
	}

	if firmware.lastADCSample != 0 {
		fmt.Fprintf(os.Stderr, "last ADC sample: %#04x\n",
			firmware.lastADCSample)
	}
}
