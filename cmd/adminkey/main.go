// Command adminkey prints the bcrypt hash to put in ADMIN_KEY_HASH.
//
// Usage:
//
//	adminkey --key <plain> [--cost 10]
//	echo -n <plain> | adminkey
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/ticket-sale-gate/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		key  string
		cost int
	)
	flagSet := pflag.NewFlagSet("adminkey", pflag.ContinueOnError)
	flagSet.StringVarP(&key, "key", "k", "", "admin key to hash (read from stdin when empty)")
	flagSet.IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	if key == "" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read key from stdin: %w", err)
		}
		key = strings.TrimRight(line, "\r\n")
	}
	if key == "" {
		return errors.New("empty admin key")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	hash, err := utils.HashAdminKey(key, cost)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
