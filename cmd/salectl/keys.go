package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"

	"salechain/crypto"
)

func loadKey(path string) (solana.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("key file required")
	}
	key, err := crypto.LoadKeyFile(path)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return key, nil
}

func writeKey(path string, key solana.PrivateKey) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return crypto.SaveKeyFile(path, key)
}

func parseAddress(label, value string) (solana.PublicKey, error) {
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("--%s: %w", label, err)
	}
	return addr, nil
}

func (c *cli) runKeygen(args []string) int {
	fs := c.newFlagSet("keygen")
	out := fs.String("out", "", "path of the key file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *out == "" {
		return c.fail("--out is required")
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return c.fail("generate key: %v", err)
	}
	if err := writeKey(*out, key); err != nil {
		return c.fail("%v", err)
	}
	return c.print(map[string]string{"address": key.PublicKey().String(), "keyFile": *out})
}

func (c *cli) runAddress(args []string) int {
	if len(args) != 1 {
		return c.fail("usage: address <key-file>")
	}
	key, err := loadKey(args[0])
	if err != nil {
		return c.fail("%v", err)
	}
	fmt.Fprintln(c.stdout, key.PublicKey().String())
	return 0
}

func (c *cli) runBalance(args []string) int {
	if len(args) != 1 {
		return c.fail("usage: balance <address>")
	}
	if _, err := parseAddress("address", args[0]); err != nil {
		return c.fail("%v", err)
	}
	return c.printCall("ledger_getAccount", args[0])
}

func (c *cli) runAirdrop(args []string) int {
	fs := c.newFlagSet("airdrop")
	to := fs.String("to", "", "recipient address")
	lamports := fs.Uint64("lamports", 0, "lamports to credit")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseAddress("to", *to); err != nil {
		return c.fail("%v", err)
	}
	if *lamports == 0 {
		return c.fail("--lamports must be positive")
	}
	if c.token == "" && c.adminToken != nil {
		token, err := c.adminToken()
		if err != nil {
			return c.fail("%v", err)
		}
		c.token = token
	}
	return c.printCall("ledger_airdrop", map[string]interface{}{"address": *to, "lamports": *lamports})
}
