// Idxfetch collects public data from the Indonesia Stock Exchange (IDX)
// website into JSON files, pacing and retrying its requests so the
// exchange's bot protection is not tripped.
package main

import (
	"flag"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/idxfetch.yaml", "path to config file")
	serve := flag.Bool("serve", false, "run the scheduler and admin server until interrupted")
	job := flag.String("job", "", "run a single job by name and exit")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("idxfetch", version)
		os.Exit(0)
	}
	if *serve && *job != "" {
		fmt.Fprintln(os.Stderr, "error: -serve and -job are mutually exclusive")
		os.Exit(2)
	}

	if err := run(*configPath, *serve, *job); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
