package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/basketfi/vaultcore/internal/config"
	"github.com/basketfi/vaultcore/internal/ledger"
	"github.com/basketfi/vaultcore/internal/precise"
	"github.com/basketfi/vaultcore/internal/repository"
)

// inspector dumps persisted vault ledgers straight from Postgres,
// bypassing the API. Handy when diagnosing drift between the ledger and
// a money market.

func main() {
	vaultFilter := flag.String("vault", "", "only show this vault (hex address)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Database.DSN == "" {
		log.Fatal("database.dsn is not configured")
	}

	db, err := repository.NewDB(cfg)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	store, err := repository.NewPostgresVaultStore(db)
	if err != nil {
		log.Fatalf("failed to prepare store: %v", err)
	}

	snaps, err := store.LoadAll(context.Background())
	if err != nil {
		log.Fatalf("failed to load vaults: %v", err)
	}

	for _, snap := range snaps {
		if *vaultFilter != "" && snap.ID != *vaultFilter {
			continue
		}
		v, err := ledger.FromSnapshot(snap)
		if err != nil {
			log.Printf("skipping vault %s: %v", snap.ID, err)
			continue
		}
		dump(v)
	}
}

func dump(v *ledger.Vault) {
	supply := v.TotalSupply()
	fmt.Printf("vault %s\n", v.ID.Hex())
	fmt.Printf("  total_supply: %s\n", precise.ToDecimal(supply))
	fmt.Printf("  multiplier:   %s\n", precise.ToDecimal(v.Multiplier()))

	for _, c := range v.Components() {
		fmt.Printf("  component %s\n", c.Hex())
		if v.HasDefaultPosition(c) {
			unit := v.DefaultPositionRealUnit(c)
			fmt.Printf("    default  unit=%s notional=%s\n",
				precise.ToDecimal(unit), precise.ToDecimal(ledger.TotalNotional(supply, unit)))
		}
		for _, m := range v.ExternalModules(c) {
			unit := v.ExternalPositionRealUnit(c, m)
			fmt.Printf("    external unit=%s notional=%s module=%s\n",
				precise.ToDecimal(unit), precise.ToDecimal(ledger.TotalNotional(supply, unit)), m.Hex())
		}
	}
	fmt.Println()
}
