package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/stephanedenis/pensine-plugin-calendar/internal/auth"
	"github.com/stephanedenis/pensine-plugin-calendar/internal/config"
)

func main() {
	configPath := flag.String("config", "pensine.yaml", "Path to configuration file")
	subject := flag.String("subject", "pensine", "Token subject")
	ttl := flag.Duration("ttl", 30*24*time.Hour, "Token lifetime")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "Error: no JWT secret; set auth.jwtSecret or PENSINE_JWT_SECRET")
		os.Exit(1)
	}

	token, err := auth.IssueToken([]byte(cfg.Auth.JWTSecret), *subject, *ttl, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error signing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	if cfg.Auth.Method != "jwt" {
		fmt.Fprintf(os.Stderr, "\nNote: auth.method is %q; set it to \"jwt\" for this token to be checked.\n", cfg.Auth.Method)
	}
	fmt.Fprintf(os.Stderr, "\nUse it as \"Authorization: Bearer <token>\" or open /calendar?token=<token>\n")
}
