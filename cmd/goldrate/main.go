package main

import (
	_ "time/tzdata"

	"github.com/test7679/gold-rate-alert/internal/cli"
)

func main() {
	cli.Execute()
}
