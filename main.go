package main

import (
	"os"

	"github.com/asiradnan/saml/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
