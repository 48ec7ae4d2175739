// Command deviceauth runs the device session manager over HTTP and provides
// offline helpers for password hashes and user seeding.
//
//	deviceauth --config deviceauth.yaml serve
//	deviceauth hash-password < pw.txt
//	deviceauth --config deviceauth.yaml seed-user --login alice --email a@x.io
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
