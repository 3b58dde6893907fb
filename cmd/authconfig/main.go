package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/IMQS/authcore"
)

// Loads an authcore config file, applies environment overrides, and prints
// the effective configuration. Useful for verifying a deployment before
// pointing a service at it.
func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: authconfig <path to authcore.json>")
		return
	}
	cfg := &authcore.Config{}
	if err := cfg.LoadFile(os.Args[1]); err != nil {
		panic(fmt.Errorf("error loading config: %w", err))
	}
	out, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		panic(err)
	}
	fmt.Printf("%s\n", out)

	policy := authcore.PasswordPolicyFromConfig(cfg)
	out, err = json.MarshalIndent(policy, "", "\t")
	if err != nil {
		panic(err)
	}
	fmt.Printf("Effective password policy:\n%s\n", out)
}
