package main

import (
	"os"

	"github.com/auditpipe/mail-audit/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
