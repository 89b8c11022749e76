// Command secure-server serves the secure message and health endpoints over HTTPS.
package main

import (
	"context"
	"os"

	"github.com/sufield/securechain/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), cli.NewServerCommand()))
}
