package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Nueylo/smartroad-inspector-ioqtoe/internal/handler"
)

func main() {
	root := &cobra.Command{
		Use:           "smartroad",
		Short:         "Road defect reporting and triage API",
		Version:       handler.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.AddCommand(newServeCmd(), newMigrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
