package main

import (
	"context"
	"fmt"
	"log"
	"time"
)

// sampleProducts é o catálogo inicial carregado quando a loja sobe vazia
func sampleProducts() []*Product {
	now := time.Now()
	return []*Product{
		{ID: "windows-10-pro-key", Name: "Windows 10 Pro Key", Description: "Genuine Windows 10 Professional License Key", PriceCents: 1599, Category: "software", Stock: 100, IsDigital: true, DigitalKey: "WIN10-ABCD-EFGH-IJKL", CreatedAt: now},
		{ID: "spotify-premium-1y", Name: "Spotify Premium 1 Year", Description: "Spotify Premium Account 1 Year Subscription", PriceCents: 2599, Category: "accounts", Stock: 50, IsDigital: true, DigitalKey: "SPOTIFY-1234-5678", CreatedAt: now},
		{ID: "minecraft-account", Name: "Minecraft Account", Description: "Premium Minecraft Game Account", PriceCents: 1299, Category: "games", Stock: 30, IsDigital: true, DigitalKey: "MC-9876-5432-1098", CreatedAt: now},
		{ID: "netflix-premium-1m", Name: "Netflix Premium", Description: "Netflix Premium Account 1 Month", PriceCents: 899, Category: "accounts", Stock: 25, IsDigital: true, DigitalKey: "NETFLIX-2468-1357", CreatedAt: now},
		{ID: "adobe-cc-1m", Name: "Adobe Creative Cloud", Description: "Adobe CC All Apps 1 Month", PriceCents: 4599, Category: "software", Stock: 20, IsDigital: true, DigitalKey: "ADOBE-3691-2584", CreatedAt: now},
		{ID: "steam-wallet-20", Name: "Steam Wallet $20", Description: "$20 Steam Wallet Code", PriceCents: 2000, Category: "games", Stock: 40, IsDigital: true, DigitalKey: "STEAM-7418-5296", CreatedAt: now},
	}
}

// SeedCatalog insere o catálogo inicial quando ainda não há produtos
func SeedCatalog(ctx context.Context, catalog CatalogRepository) error {
	count, err := catalog.CountProducts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, product := range sampleProducts() {
		if err := catalog.CreateProduct(ctx, product); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", product.ID, err)
		}
	}

	log.Printf("✅ Sample products inserted successfully")
	return nil
}
