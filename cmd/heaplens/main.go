// ABOUTME: Entry point for the heaplens CLI binary

package main

func main() {
	Execute()
}
