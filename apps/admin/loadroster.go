package main

import (
	"context"
	"fmt"
	"os"

	"github.com/itdsea/coursework/core/roster"
)

// loadRoster bulk-loads eligible student ids from a CSV file. Existing
// entries are kept untouched.
func (cli *commandLine) loadRoster(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	count, err := roster.NewService(cli.rosterRepo).LoadCSV(context.Background(), f)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d roster entries\n", count)
	return nil
}
