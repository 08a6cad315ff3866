package main

import (
	"math"
	"os"

	"github.com/gagliardetto/solana-go"

	"salechain/core"
	"salechain/core/types"
	"salechain/integrations/exports"
	"salechain/native/crowdsale"
	"salechain/native/token"
)

const purchasePage = 500

func (c *cli) runSaleCommand(args []string) int {
	if len(args) == 0 {
		return c.fail("usage: sale <create|fund|get|buy|withdraw|close|purchases|export> [flags]")
	}
	switch args[0] {
	case "create":
		return c.runSaleCreate(args[1:])
	case "fund":
		return c.runSaleFund(args[1:])
	case "get":
		return c.runSaleGet(args[1:])
	case "buy":
		return c.runSaleBuy(args[1:])
	case "withdraw":
		return c.runSaleOwnerAction(args[1:], "withdraw", crowdsale.NewWithdrawInstruction)
	case "close":
		return c.runSaleOwnerAction(args[1:], "close", crowdsale.NewCloseInstruction)
	case "purchases":
		return c.runSalePurchases(args[1:])
	case "export":
		return c.runSaleExport(args[1:])
	default:
		return c.fail("unknown sale subcommand: %s", args[0])
	}
}

func (c *cli) runSaleCreate(args []string) int {
	fs := c.newFlagSet("sale create")
	keyFile := fs.String("key", "", "owner key file; pays rent")
	idFlag := fs.String("id", "", "sale id address")
	mintFlag := fs.String("mint", "", "mint of the token on sale")
	cost := fs.Uint64("cost", 0, "lamports per token")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	owner, err := loadKey(*keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	id, err := parseAddress("id", *idFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	mint, err := parseAddress("mint", *mintFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	if *cost == 0 || *cost > math.MaxUint32 {
		return c.fail("--cost must be between 1 and %d", uint64(math.MaxUint32))
	}
	ix, err := crowdsale.NewInitializeInstruction(owner.PublicKey(), id, mint, uint32(*cost))
	if err != nil {
		return c.fail("%v", err)
	}
	return c.submit([]types.Instruction{ix}, owner)
}

func (c *cli) runSaleFund(args []string) int {
	fs := c.newFlagSet("sale fund")
	keyFile := fs.String("key", "", "mint authority key file")
	idFlag := fs.String("id", "", "sale id address")
	mintFlag := fs.String("mint", "", "mint of the token on sale")
	amount := fs.Uint64("amount", 0, "tokens to mint into the sale reserve")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	authority, err := loadKey(*keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	id, err := parseAddress("id", *idFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	mint, err := parseAddress("mint", *mintFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	if *amount == 0 {
		return c.fail("--amount must be positive")
	}
	reserve, err := crowdsale.ReserveAddress(id, mint)
	if err != nil {
		return c.fail("%v", err)
	}
	return c.submit([]types.Instruction{token.NewMintToInstruction(mint, reserve, authority.PublicKey(), *amount)}, authority)
}

func (c *cli) runSaleGet(args []string) int {
	fs := c.newFlagSet("sale get")
	idFlag := fs.String("id", "", "sale id address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseAddress("id", *idFlag); err != nil {
		return c.fail("%v", err)
	}
	return c.printCall("sale_get", *idFlag)
}

func (c *cli) runSaleBuy(args []string) int {
	fs := c.newFlagSet("sale buy")
	keyFile := fs.String("key", "", "buyer key file")
	idFlag := fs.String("id", "", "sale id address")
	mintFlag := fs.String("mint", "", "mint of the token on sale; looked up when empty")
	amount := fs.Uint64("amount", 0, "tokens to buy")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	buyer, err := loadKey(*keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	id, err := parseAddress("id", *idFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	if *amount == 0 || *amount > math.MaxUint32 {
		return c.fail("--amount must be between 1 and %d", uint64(math.MaxUint32))
	}
	var mint solana.PublicKey
	if *mintFlag != "" {
		if mint, err = parseAddress("mint", *mintFlag); err != nil {
			return c.fail("%v", err)
		}
	} else {
		var view core.SaleView
		if err := c.call("sale_get", &view, id.String()); err != nil {
			return c.fail("%v", err)
		}
		mint = view.Record.MintAccount
	}
	ix, err := crowdsale.NewBuyTokensInstruction(buyer.PublicKey(), id, mint, uint32(*amount))
	if err != nil {
		return c.fail("%v", err)
	}
	return c.submit([]types.Instruction{ix}, buyer)
}

func (c *cli) runSaleOwnerAction(args []string, name string, build func(owner, id solana.PublicKey) (types.Instruction, error)) int {
	fs := c.newFlagSet("sale " + name)
	keyFile := fs.String("key", "", "sale owner key file")
	idFlag := fs.String("id", "", "sale id address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	owner, err := loadKey(*keyFile)
	if err != nil {
		return c.fail("%v", err)
	}
	id, err := parseAddress("id", *idFlag)
	if err != nil {
		return c.fail("%v", err)
	}
	ix, err := build(owner.PublicKey(), id)
	if err != nil {
		return c.fail("%v", err)
	}
	return c.submit([]types.Instruction{ix}, owner)
}

type purchasesPage struct {
	Total     uint64                `json:"total"`
	Purchases []core.PurchaseRecord `json:"purchases"`
}

func (c *cli) fetchPurchases(id string, offset, limit uint64) (*purchasesPage, error) {
	var page purchasesPage
	params := map[string]interface{}{"saleId": id, "offset": offset, "limit": limit}
	if err := c.call("sale_listPurchases", &page, params); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *cli) runSalePurchases(args []string) int {
	fs := c.newFlagSet("sale purchases")
	idFlag := fs.String("id", "", "sale id address")
	offset := fs.Uint64("offset", 0, "first purchase to return")
	limit := fs.Uint64("limit", 50, "maximum purchases to return")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseAddress("id", *idFlag); err != nil {
		return c.fail("%v", err)
	}
	page, err := c.fetchPurchases(*idFlag, *offset, *limit)
	if err != nil {
		return c.fail("%v", err)
	}
	return c.print(page)
}

func (c *cli) runSaleExport(args []string) int {
	fs := c.newFlagSet("sale export")
	idFlag := fs.String("id", "", "sale id address")
	format := fs.String("format", "csv", "csv, jsonl or parquet")
	out := fs.String("out", "", "output file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if _, err := parseAddress("id", *idFlag); err != nil {
		return c.fail("%v", err)
	}
	if *out == "" {
		return c.fail("--out is required")
	}
	var rows []core.PurchaseRecord
	for {
		page, err := c.fetchPurchases(*idFlag, uint64(len(rows)), purchasePage)
		if err != nil {
			return c.fail("%v", err)
		}
		rows = append(rows, page.Purchases...)
		if len(page.Purchases) == 0 || uint64(len(rows)) >= page.Total {
			break
		}
	}

	summary := map[string]interface{}{"rows": len(rows), "format": *format, "file": *out}
	switch *format {
	case "csv":
		data, checksum, err := exports.PurchasesCSV(rows)
		if err != nil {
			return c.fail("export csv: %v", err)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return c.fail("write %s: %v", *out, err)
		}
		summary["sha256"] = checksum
	case "jsonl":
		data, checksum, err := exports.PurchasesJSONL(rows)
		if err != nil {
			return c.fail("export jsonl: %v", err)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return c.fail("write %s: %v", *out, err)
		}
		summary["sha256"] = checksum
	case "parquet":
		if err := exports.WritePurchasesParquet(*out, rows); err != nil {
			return c.fail("export parquet: %v", err)
		}
	default:
		return c.fail("unsupported format %q", *format)
	}
	return c.print(summary)
}
