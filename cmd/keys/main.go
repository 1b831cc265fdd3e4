package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/proctoken/internal/config"
	jwtx "github.com/dropDatabas3/proctoken/internal/jwt"
	"github.com/dropDatabas3/proctoken/internal/keyregistry"
)

// keys es una herramienta offline para inspeccionar material público.
// No publica ni activa claves: eso es responsabilidad exclusiva del nodo.
func main() {
	var (
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env")
		flagConfigPath = flag.String("config", "", "ruta a config.yaml")
		cmdFetch       = flag.String("fetch", "", "kid a leer del registry")
		cmdGen         = flag.Bool("gen", false, "genera un par y muestra el material público que se publicaría")
		flagProduct    = flag.String("product", "", "product id para -gen (default keys.product_id)")
		flagDays       = flag.Int("days", 0, "vida en días para -gen (default keys.lifetime_days)")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}
	cfg, err := config.Load(*flagConfigPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	switch {
	case *cmdFetch != "":
		fetch(cfg, *cmdFetch)
	case *cmdGen:
		product := *flagProduct
		if product == "" {
			product = cfg.Keys.ProductID
		}
		days := *flagDays
		if days == 0 {
			days = cfg.Keys.LifetimeDays
		}
		gen(product, days)
	default:
		fmt.Fprintln(os.Stderr, "usar -fetch <kid> o -gen")
		os.Exit(2)
	}
}

func fetch(cfg *config.Config, kid string) {
	client := keyregistry.New(keyregistry.Config{
		BaseURL:      cfg.Registry.URL,
		Timeout:      cfg.Registry.Timeout,
		RetryBackoff: cfg.Registry.RetryBackoff,
		TokenSource: func(context.Context) (string, error) {
			return cfg.Registry.BearerToken, nil
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res := client.Fetch(ctx, kid)
	if !res.OK() {
		log.Fatalf("fetch %s: %s (status=%d)", kid, res.Message, res.StatusCode)
	}
	pm, err := jwtx.ParsePublicMaterial(res.Material)
	if err != nil {
		log.Fatalf("material inválido: %v", err)
	}
	printJSON(map[string]any{
		"kid":       pm.KeyID,
		"productId": pm.ProductID,
		"expiresAt": time.Unix(pm.ExpiresAt, 0).UTC().Format(time.RFC3339),
		"expired":   pm.ExpiresAt > 0 && !time.Now().Before(time.Unix(pm.ExpiresAt, 0)),
		"bits":      pm.Key.N.BitLen(),
	})
}

func gen(product string, days int) {
	km, err := jwtx.GenerateKeyModel(product, days, time.Now())
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	var material any
	_ = json.Unmarshal(km.PublicMaterial(), &material)
	printJSON(map[string]any{
		"kid":      km.KeyID(),
		"material": material,
	})
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
