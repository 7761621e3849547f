// Command mudra turns hand poses seen by a webcam into MIDI control changes.
package main

func main() {
	Execute()
}
