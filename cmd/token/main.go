// token mints access tokens for operators.  Accounts are managed outside
// the inventory service, so this is how ADMIN and DISTRIBUTOR tokens are
// issued against the JWT_SECRET the server verifies with.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/iliyamo/ticket-inventory/internal/config"
	"github.com/iliyamo/ticket-inventory/internal/middleware"
	"github.com/iliyamo/ticket-inventory/internal/utils"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		userID uint64
		role   string
		ttl    int
		secret string
	)
	flags := pflag.NewFlagSet("token", pflag.ContinueOnError)
	flags.Uint64Var(&userID, "user", 0, "operator id placed in the sub claim (required)")
	flags.StringVar(&role, "role", middleware.RoleDistributor, "ADMIN or DISTRIBUTOR")
	flags.IntVar(&ttl, "ttl", 0, "lifetime in minutes (default ACCESS_TOKEN_TTL_MIN)")
	flags.StringVar(&secret, "secret", "", "signing secret (default JWT_SECRET)")
	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if userID == 0 {
		return fmt.Errorf("--user is required")
	}
	role = strings.ToUpper(strings.TrimSpace(role))
	if role != middleware.RoleAdmin && role != middleware.RoleDistributor {
		return fmt.Errorf("unknown role %q", role)
	}
	envSecret, envTTL := config.AuthSettings()
	if secret == "" {
		secret = envSecret
	}
	if secret == "" {
		return fmt.Errorf("no signing secret: pass --secret or set JWT_SECRET")
	}
	if ttl <= 0 {
		ttl = envTTL
	}

	tok, err := utils.NewAccessToken(secret, userID, role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format("2006-01-02 15:04:05Z07:00"))
	return nil
}
