// Command pulsecam estimates heart rate from a webcam or a recorded video.
package main

func main() {
	Execute()
}
