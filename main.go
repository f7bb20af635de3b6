package main

import (
	"os"

	"github.com/secpipe-io/secpipe/cmd"
)

func main() {
	code := cmd.Execute()
	os.Exit(code)
}
