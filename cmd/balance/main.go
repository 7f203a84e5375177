// Command balance prints the wallet's on-chain USDC and POL balances, its
// USDC allowances to the exchange contracts and, with -clob, the venue's view
// of the collateral balance.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"poly-frontrun/internal/clob"
	"poly-frontrun/internal/config"
	"poly-frontrun/internal/ethutil"
	"poly-frontrun/internal/polygonutil"
	"poly-frontrun/internal/polygonwatch"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[warn] load .env: %v\n", err)
	}

	var (
		addrFlag  = flag.String("address", "", "wallet to check (default: PUBLIC_KEY or the PRIVATE_KEY signer)")
		rpcFlag   = flag.String("rpc", "", "Polygon RPC URL (default: RPC_URL)")
		clobFlag  = flag.Bool("clob", false, "also query the CLOB balance-allowance endpoint (needs PRIVATE_KEY)")
		minPOL    = flag.String("min-pol", "0.1", "warn when the POL balance is below this")
		timeoutFl = flag.Duration("timeout", 15*time.Second, "overall timeout")
	)
	flag.Parse()

	if err := run(*addrFlag, *rpcFlag, *clobFlag, *minPOL, *timeoutFl); err != nil {
		fmt.Fprintf(os.Stderr, "[fatal] %v\n", err)
		os.Exit(1)
	}
}

func run(addrFlag, rpcFlag string, withCLOB bool, minPOL string, timeout time.Duration) error {
	rpcURL := firstNonEmpty(rpcFlag, os.Getenv("RPC_URL"))
	if err := polygonutil.ValidateRPCURL(rpcURL); err != nil {
		return err
	}
	owner, ownerSrc, err := resolveOwner(addrFlag)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	defer eth.Close()

	usdcAddr := polygonutil.USDCTokenAddress
	if s := strings.TrimSpace(os.Getenv("USDC_CONTRACT_ADDRESS")); s != "" {
		if !common.IsHexAddress(s) {
			return fmt.Errorf("invalid USDC_CONTRACT_ADDRESS %q", s)
		}
		usdcAddr = common.HexToAddress(s)
	}
	b, err := polygonutil.NewBalances(eth, owner, usdcAddr)
	if err != nil {
		return err
	}

	usdc, err := b.QuoteBalance(ctx)
	if err != nil {
		return err
	}
	pol, err := b.GasBalance(ctx)
	if err != nil {
		return err
	}
	allowances, err := b.Allowances(ctx, polygonwatch.ExchangeAddresses)
	if err != nil {
		return err
	}

	fmt.Printf("owner: %s (%s)\n", owner.Hex(), ownerSrc)
	fmt.Printf("usdc_balance: %s\n", usdc.String())
	fmt.Printf("pol_balance: %s\n", pol.String())
	for _, ex := range polygonwatch.ExchangeAddresses {
		fmt.Printf("usdc_allowance[%s]: %s\n", ex.Hex(), allowances[ex].String())
	}
	if threshold, err := decimal.NewFromString(minPOL); err == nil && pol.LessThan(threshold) {
		fmt.Printf("warning: POL balance below %s; the frontrun engine will reject executions\n", threshold)
	}

	if !withCLOB {
		return nil
	}
	return printCLOBBalance(ctx)
}

func printCLOBBalance(ctx context.Context) error {
	pk, _, err := ethutil.ParsePrivateKey(os.Getenv("PRIVATE_KEY"))
	if err != nil {
		return err
	}
	var funder common.Address
	if s := strings.TrimSpace(os.Getenv("PUBLIC_KEY")); s != "" {
		if !common.IsHexAddress(s) {
			return fmt.Errorf("invalid PUBLIC_KEY %q", s)
		}
		funder = common.HexToAddress(s)
	}
	sigType := 0
	if s := strings.TrimSpace(os.Getenv("SIGNATURE_TYPE")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid SIGNATURE_TYPE %q", s)
		}
		sigType = v
	}

	c, err := clob.NewClient(firstNonEmpty(os.Getenv("CLOB_URL"), clob.DefaultHost), config.PolygonChainID, pk, funder, sigType)
	if err != nil {
		return err
	}
	creds, err := c.CreateOrDeriveApiKey(ctx, 0, true)
	if err != nil {
		return fmt.Errorf("derive api key: %w", err)
	}
	c.SetApiCreds(creds)

	ba, err := c.GetBalanceAllowance(ctx, clob.AssetCollateral, "", true)
	if err != nil {
		return err
	}
	bal, err := ba.BalanceUSD()
	if err != nil {
		return err
	}
	fmt.Printf("clob_collateral_balance: %s\n", bal.String())
	for spender, v := range ba.Allowances {
		fmt.Printf("clob_allowance[%s]: %s\n", spender, v)
	}
	return nil
}

func resolveOwner(addrFlag string) (common.Address, string, error) {
	if raw := strings.TrimSpace(addrFlag); raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, "", fmt.Errorf("invalid --address %q", raw)
		}
		return common.HexToAddress(raw), "--address", nil
	}
	if raw := strings.TrimSpace(os.Getenv("PUBLIC_KEY")); raw != "" {
		if !common.IsHexAddress(raw) {
			return common.Address{}, "", fmt.Errorf("invalid PUBLIC_KEY %q", raw)
		}
		return common.HexToAddress(raw), "PUBLIC_KEY", nil
	}
	if raw := strings.TrimSpace(os.Getenv("PRIVATE_KEY")); raw != "" {
		_, addr, err := ethutil.ParsePrivateKey(raw)
		if err != nil {
			return common.Address{}, "", err
		}
		return addr, "PRIVATE_KEY", nil
	}
	return common.Address{}, "", fmt.Errorf("wallet required: set PUBLIC_KEY or PRIVATE_KEY, or pass --address")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
