/*
main.go - schedctl entry point

COMMANDS:
  simulate     Propose cascade blocks for a number of hours (nothing is saved)
  utilization  Booked share of the next 60 days for a user
  blocks       List a user's active blocks
  policy       load / show / validate working-hours policy documents
  seed         Reset the database and load a demo scenario

FLAGS (all commands):
  --config     YAML config file (default: $SCHEDULER_CONFIG)
  --db         SQLite database path, overrides the config
  --log-level  Log level, overrides the config

EXAMPLES:
  schedctl policy load ./policy.yaml --db ./scheduler.db
  schedctl seed busy-consultant
  schedctl simulate --project p-atlas --user u-ana --by u-marta --start 2024-03-04 --hours 20
  schedctl utilization u-ana
*/
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
