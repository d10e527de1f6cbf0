package main

import (
	"github.com/nimburion/couchconnector/pkg/cli"
)

func main() {
	cli.Execute(cli.NewCommand(cli.CommandOptions{
		Name:        "couchconnector",
		Description: "Revisioned document store connector for CouchDB",
		EnvPrefix:   "COUCH",
	}))
}
