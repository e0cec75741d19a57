// Command avrcore runs a demo firmware on the emulated microcontroller.
package main

func main() {
	Execute()
}
