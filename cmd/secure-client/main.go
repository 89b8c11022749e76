// Command secure-client calls the secure message server over HTTPS, trusting only
// the anchors in its trust store.
package main

import (
	"context"
	"os"

	"github.com/sufield/securechain/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), cli.NewClientCommand()))
}
