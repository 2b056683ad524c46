// The main package for the ingestd executable.
package main

import (
	"github.com/JakeFAU/legal-ingest-crawler/cmd"
)

func main() {
	cmd.Execute()
}
