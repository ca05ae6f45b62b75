// LegacyVault - dead man's switch for digital legacies
package main

import "github.com/lcrostarosa/legacyvault/internal/cli"

func main() {
	cli.Execute()
}
