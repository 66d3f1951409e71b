// Command locstat counts lines of source code in Git repositories.
package main

import (
	"os"

	"github.com/huangsam/locstat/cmd"
	"github.com/huangsam/locstat/internal/contract"
)

func main() {
	err := cmd.Execute()
	if stopErr := cmd.StopProfiling(); stopErr != nil {
		contract.LogWarn("Failed to stop profiling", stopErr)
	}
	if err != nil {
		contract.Logger.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}
