package main

// Set by ldflags.
var version = "dev"

func main() {
	Execute(version)
}
