package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/alanyoungcy/darkpool/internal/crypto"
)

func runKeygen(c *cli.Context) error {
	m := c.App.Metadata["config"].(*metadata)

	out := c.String("out")
	if out == "" {
		return errors.New("output file is required")
	}
	password := c.String("password")
	if password == "" {
		return errors.New("password is required")
	}
	if _, err := os.Stat(out); err == nil {
		return fmt.Errorf("%s already exists", out)
	}

	acct, seedHex, err := crypto.GenerateAccount()
	if err != nil {
		return err
	}
	if err := crypto.WriteKeyFile(out, seedHex, password); err != nil {
		return err
	}

	return printJSON(m.w, map[string]string{
		"address":   acct.Address(),
		"publicKey": acct.PublicKeyHex(),
		"keyFile":   out,
	})
}
