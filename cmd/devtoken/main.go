// Command devtoken mints an access token for local testing against the
// reservation API.
//
//	devtoken -sub u-42 -role ADMIN
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/restaurant-reservation/internal/config"
	"github.com/iliyamo/restaurant-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "", "token subject (user id)")
	role := flag.String("role", utils.RoleCustomer, "role claim: CUSTOMER or ADMIN")
	ttl := flag.Duration("ttl", config.AccessTokenTTL(), "token lifetime (default from ACCESS_TOKEN_TTL_MIN)")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "devtoken: JWT_SECRET is not set")
		os.Exit(2)
	}
	if *role != utils.RoleCustomer && *role != utils.RoleAdmin {
		fmt.Fprintf(os.Stderr, "devtoken: unknown role %q\n", *role)
		os.Exit(2)
	}

	tok, err := utils.NewAccessToken(secret, *sub, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
