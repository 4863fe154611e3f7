/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"log"

	"github.com/spf13/cobra"
)

const (
	releaseVersion = "0.1.0"
)

func main() {
	log.SetFlags(0)
	cobra.CheckErr(loadEnvFiles(".env"))
	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
