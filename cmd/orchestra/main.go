// Command orchestra runs batches of dependent tasks with bounded concurrency.
package main

func main() {
	Execute()
}
