package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ecl-project/ecl/internal/node"
	"github.com/ecl-project/ecl/pkg/log"
)

// Console is the interactive operator menu. Input is read on its own
// goroutine and dispatched alongside shutdown in a select loop, so the
// console never blocks daemon teardown.
type Console struct {
	node   *node.Node
	logger *log.Logger
}

// NewConsole creates a console over a node
func NewConsole(n *node.Node, logger *log.Logger) *Console {
	return &Console{
		node:   n,
		logger: logger.WithComponent("console"),
	}
}

// Run reads commands until EOF or context cancellation
func (c *Console) Run(ctx context.Context) {
	lineCh := make(chan string)
	go func() {
		defer close(lineCh)
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lineCh <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printHelp()
	fmt.Print("> ")

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lineCh:
			if !ok {
				return
			}
			if !c.dispatch(ctx, strings.TrimSpace(line)) {
				return
			}
			fmt.Print("> ")
		}
	}
}

// dispatch runs one command; returns false to exit
func (c *Console) dispatch(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "help":
		c.printHelp()
	case "exit", "quit":
		return false
	case "wallet":
		c.cmdWallet(ctx, fields[1:])
	case "wallets":
		c.cmdWallets(ctx)
	case "submit":
		c.cmdSubmit(ctx, line)
	case "validate":
		c.cmdValidate(ctx)
	case "mine":
		c.cmdMine(ctx)
	case "chain":
		c.cmdChain()
	case "pools":
		c.cmdPools()
	case "authorize":
		c.cmdAuthorize(fields[1:])
	case "market":
		c.cmdMarket(ctx, fields[1:])
	default:
		fmt.Printf("unknown command %q, try help\n", fields[0])
	}
	return true
}

func (c *Console) printHelp() {
	fmt.Println(`commands:
  wallet new                                   create a wallet
  wallets                                      list wallet balances
  submit <wallet> <task-id> <proof-json>       stake a claim
  validate                                     run the validation pass
  mine                                         mine the validated pool
  chain                                        print the block chain
  pools                                        print both task pools
  authorize <device-id>                        whitelist a device or sentinel
  market convert <wallet> <amount>             exchange credits for tokens
  market sell <wallet> <tokens> <price>        list tokens for sale
  market buy <wallet> <listing-id>             buy a listing
  market cancel <wallet> <listing-id>          cancel a listing
  market listings                              show open listings
  exit`)
}

func (c *Console) cmdWallet(ctx context.Context, args []string) {
	if len(args) != 1 || args[0] != "new" {
		fmt.Println("usage: wallet new")
		return
	}

	gen, err := c.node.CreateWallet(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("address:  %s\n", gen.Wallet.Address)
	fmt.Printf("balance:  %d\n", gen.Wallet.Balance)
	fmt.Printf("mnemonic: %s\n", gen.Mnemonic)
	fmt.Println("store the mnemonic safely, it is not shown again")
}

func (c *Console) cmdWallets(ctx context.Context) {
	wallets, err := c.node.Balances(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if len(wallets) == 0 {
		fmt.Println("no wallets")
		return
	}
	for _, w := range wallets {
		fmt.Printf("%s  balance=%d tokens=%d\n", w.Address, w.Balance, w.Tokens)
	}
}

func (c *Console) cmdSubmit(ctx context.Context, line string) {
	// submit <wallet> <task-id> <proof-json>, where the proof json may
	// contain spaces
	parts := strings.SplitN(line, " ", 4)
	if len(parts) != 4 {
		fmt.Println("usage: submit <wallet> <task-id> <proof-json>")
		return
	}

	proof := json.RawMessage(parts[3])
	tx, err := c.node.SubmitClaim(ctx, parts[1], parts[2], proof)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("claim %s staked, reward on acceptance: %d\n", tx.Task, tx.Amount)
}

func (c *Console) cmdValidate(ctx context.Context) {
	results := c.node.RunValidationPass(ctx)
	if len(results) == 0 {
		fmt.Println("nothing to validate")
		return
	}
	for _, res := range results {
		if res.Reason != "" {
			fmt.Printf("%s: %s (%s)\n", res.TaskID, res.Status, res.Reason)
		} else {
			fmt.Printf("%s: %s\n", res.TaskID, res.Status)
		}
	}
}

func (c *Console) cmdMine(ctx context.Context) {
	block, err := c.node.Mine(ctx)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("block %d mined: %s (%d claims, %d credits)\n",
		block.Index, block.Hash, len(block.Transactions), block.RewardTotal())
}

func (c *Console) cmdChain() {
	for _, b := range c.node.ChainSnapshot() {
		fmt.Printf("block %d  hash=%s prev=%s claims=%d\n",
			b.Index, b.Hash, b.PreviousHash, len(b.Transactions))
	}
}

func (c *Console) cmdPools() {
	awaitingValidation, awaitingMining := c.node.PendingPools()
	fmt.Printf("awaiting validation (%d):\n", len(awaitingValidation))
	for _, tx := range awaitingValidation {
		fmt.Printf("  %s  sender=%s reward=%d\n", tx.Task, tx.Sender, tx.Amount)
	}
	fmt.Printf("awaiting mining (%d):\n", len(awaitingMining))
	for _, tx := range awaitingMining {
		fmt.Printf("  %s  sender=%s reward=%d\n", tx.Task, tx.Sender, tx.Amount)
	}
}

func (c *Console) cmdAuthorize(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: authorize <device-id>")
		return
	}
	c.node.AuthorizeDevice(args[0])
	fmt.Printf("device %s authorized\n", args[0])
}

func (c *Console) cmdMarket(ctx context.Context, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: market convert|sell|buy|cancel|listings ...")
		return
	}

	switch args[0] {
	case "listings":
		listings := c.node.Listings()
		if len(listings) == 0 {
			fmt.Println("no open listings")
			return
		}
		for _, l := range listings {
			fmt.Printf("%s  seller=%s tokens=%d price=%d\n", l.ID, l.Seller, l.Tokens, l.Price)
		}
	case "convert":
		if len(args) != 3 {
			fmt.Println("usage: market convert <wallet> <amount>")
			return
		}
		amount, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Println("amount must be a positive integer")
			return
		}
		if err := c.node.ConvertCredits(ctx, args[1], amount); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("converted %d credits to tokens\n", amount)
	case "sell":
		if len(args) != 4 {
			fmt.Println("usage: market sell <wallet> <tokens> <price>")
			return
		}
		tokens, err1 := strconv.ParseUint(args[2], 10, 64)
		price, err2 := strconv.ParseUint(args[3], 10, 64)
		if err1 != nil || err2 != nil {
			fmt.Println("tokens and price must be positive integers")
			return
		}
		listing, err := c.node.ListTokens(ctx, args[1], tokens, price)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Printf("listing %s created\n", listing.ID)
	case "buy":
		if len(args) != 3 {
			fmt.Println("usage: market buy <wallet> <listing-id>")
			return
		}
		if err := c.node.BuyListing(ctx, args[1], args[2]); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("listing bought")
	case "cancel":
		if len(args) != 3 {
			fmt.Println("usage: market cancel <wallet> <listing-id>")
			return
		}
		if err := c.node.CancelListing(ctx, args[1], args[2]); err != nil {
			fmt.Printf("error: %v\n", err)
			return
		}
		fmt.Println("listing cancelled")
	default:
		fmt.Printf("unknown market command %q\n", args[0])
	}
}
