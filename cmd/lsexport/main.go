// Command lsexport extracts point of sale data from a Lightspeed X-Series
// store into flat files, checkpointing as it goes so an interrupted run can
// be resumed without duplicating or losing records.
package main

func main() {
	Execute()
}
