package main

import (
	"encoding/json"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"salechain/core/types"
	"salechain/native/token"
)

type sendResult struct {
	TxHash  string         `json:"txHash"`
	Receipt *types.Receipt `json:"receipt"`
}

// submit signs ixs with keys, the first key paying, and sends the
// transaction.
func (c *cli) submit(ixs []types.Instruction, keys ...solana.PrivateKey) int {
	tx := &types.Transaction{Nonce: c.nonce(), Instructions: ixs}
	if err := tx.Sign(keys...); err != nil {
		return c.fail("sign transaction: %v", err)
	}
	var result sendResult
	if err := c.call("ledger_sendTransaction", &result, tx); err != nil {
		if rpcErr, ok := err.(*rpcError); ok && len(rpcErr.Data) > 0 {
			fmt.Fprintf(c.stderr, "%s\n%s\n", rpcErr.Error(), string(rpcErr.Data))
			return 1
		}
		return c.fail("%v", err)
	}
	return c.print(result)
}

func (c *cli) minimumBalance(dataLen int) (uint64, error) {
	var result struct {
		Lamports uint64 `json:"lamports"`
	}
	if err := c.call("ledger_minimumBalance", &result, dataLen); err != nil {
		return 0, err
	}
	return result.Lamports, nil
}

func (c *cli) runTokenCommand(args []string) int {
	if len(args) == 0 {
		return c.fail("usage: token <create-mint|mint-to|balance> [flags]")
	}
	switch args[0] {
	case "create-mint":
		return c.runCreateMint(args[1:])
	case "mint-to":
		return c.runMintTo(args[1:])
	case "balance":
		return c.runTokenBalance(args[1:])
	default:
		return c.fail("unknown token subcommand: %s", args[0])
	}
}

func (c *cli) runCreateMint(args []string) int {
	fs := c.newFlagSet("token create-mint")
	keyFile := fs.String("key", "", "payer and mint authority key file")
	mintFile := fs.String("mint-key", "", "key file of the new mint account")
	decimals := fs.Uint("decimals", 0, "token decimals")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	payer, err := loadKey(*keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	mint, err := loadKey(*mintFile)
	if err != nil {
		return c.fail("%v", err)
	}
	if *decimals > 18 {
		return c.fail("--decimals must be <= 18")
	}
	rent, err := c.minimumBalance(token.MintSize)
	if err != nil {
		return c.fail("%v", err)
	}
	ixs := token.NewCreateMintInstructions(payer.PublicKey(), mint.PublicKey(), rent, uint8(*decimals), payer.PublicKey())
	return c.submit(ixs, payer, mint)
}

func (c *cli) runMintTo(args []string) int {
	fs := c.newFlagSet("token mint-to")
	keyFile := fs.String("key", "", "mint authority key file")
	mintFlag := fs.String("mint", "", "mint address")
	wallet := fs.String("to", "", "wallet receiving the tokens")
	amount := fs.Uint64("amount", 0, "tokens to mint")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	authority, err := loadKey(*keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	mint, err := parseAddress("mint", *mintFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	owner, err := parseAddress("to", *wallet)
	if err != nil {
		return c.fail("%v", err)
	}
	if *amount == 0 {
		return c.fail("--amount must be positive")
	}
	createIx, err := token.NewCreateIdempotentInstruction(authority.PublicKey(), owner, mint)
	if err != nil {
		return c.fail("%v", err)
	}
	ata, _, err := token.AssociatedAddress(owner, mint)
	if err != nil {
		return c.fail("%v", err)
	}
	return c.submit([]types.Instruction{createIx, token.NewMintToInstruction(mint, ata, authority.PublicKey(), *amount)}, authority)
}

func (c *cli) runTokenBalance(args []string) int {
	fs := c.newFlagSet("token balance")
	wallet := fs.String("wallet", "", "wallet address")
	mintFlag := fs.String("mint", "", "mint address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	owner, err := parseAddress("wallet", *wallet)
	if err != nil {
		return c.fail("%v", err)
	}
	mint, err := parseAddress("mint", *mintFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	ata, _, err := token.AssociatedAddress(owner, mint)
	if err != nil {
		return c.fail("%v", err)
	}
	var raw json.RawMessage
	if err := c.call("ledger_getTokenAccount", &raw, ata.String()); err != nil {
		return c.fail("%v", err)
	}
	return c.print(raw)
}
