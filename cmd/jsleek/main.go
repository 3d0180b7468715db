package main

import (
	"github.com/CompassSecurity/jsleek/internal/cmd"
	"github.com/CompassSecurity/jsleek/internal/cmd/common"
)

func main() {
	common.Run(cmd.NewRootCmd())
}
