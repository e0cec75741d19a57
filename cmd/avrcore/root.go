package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "avrcore",
	Short: "avrcore emulates an AVR-style microcontroller cycle by cycle.",
	Long: `avrcore emulates an AVR-style microcontroller cycle by cycle. ` +
		`Peripherals such as timers, the SPI unit, and the ADC run on an ` +
		`event scheduler so that idle cycles cost nothing.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Defaults can also be set through AVRCORE_* variables in the
// environment or a .env file.
func Execute() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// envString returns the value of an AVRCORE_* variable, or the fallback.
func envString(name, fallback string) string {
	v, ok := os.LookupEnv("AVRCORE_" + name)
	if !ok {
		return fallback
	}

	return v
}

// envUint64 returns the value of an AVRCORE_* variable as an integer, or the
// fallback.
func envUint64(name string, fallback uint64) uint64 {
	v, ok := os.LookupEnv("AVRCORE_" + name)
	if !ok {
		return fallback
	}

	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr,
			"Ignoring AVRCORE_%s=%q: not an integer\n", name, v)
		return fallback
	}

	return n
}
