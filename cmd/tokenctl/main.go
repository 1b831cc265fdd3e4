package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(strings.TrimSpace(string(body)))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		baseURL = envOr("PROCTOKEN_URL", "http://localhost:8080")
		out     = envOr("PROCTOKEN_OUT", "text")
		timeout = 30 * time.Second
	)
	cl := &client{}

	root := &cobra.Command{
		Use:           "tokenctl",
		Short:         "CLI para emitir y validar tokens de proceso contra un nodo",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if out != "json" && out != "text" {
				return fmt.Errorf("--out debe ser json|text")
			}
			cl.BaseURL = baseURL
			cl.OutFormat = out
			cl.HTTP = &http.Client{Timeout: timeout}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "URL base del nodo (env PROCTOKEN_URL)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")
	root.PersistentFlags().DurationVar(&timeout, "timeout", timeout, "Timeout HTTP")

	// issue
	var (
		processID string
		validity  int
		claimsRaw []string
	)
	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Emitir un token para un proceso (POST /v1/tokens)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if processID == "" {
				return fmt.Errorf("--process-id es requerido")
			}
			claims, err := parseClaims(claimsRaw)
			if err != nil {
				return err
			}
			b, _ := json.Marshal(map[string]any{
				"processId":       processID,
				"claims":          claims,
				"validitySeconds": validity,
			})
			status, body, err := cl.do(http.MethodPost, "/v1/tokens", b)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("issue fallo: status=%d body=%s", status, string(body))
			}
			if cl.OutFormat == "text" {
				var resp struct {
					Token string `json:"token"`
				}
				if json.Unmarshal(body, &resp) == nil && resp.Token != "" {
					fmt.Println(resp.Token)
					return nil
				}
			}
			cl.print(status, body)
			return nil
		},
	}
	issueCmd.Flags().StringVar(&processID, "process-id", "", "Id del proceso")
	issueCmd.Flags().IntVar(&validity, "validity", 0, "Validez en segundos (0 = máximo)")
	issueCmd.Flags().StringArrayVar(&claimsRaw, "claim", nil, "Claim extra key=value (repetible)")

	// validate
	var (
		token         string
		withProductID bool
	)
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validar un token (POST /v1/tokens/validate)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token es requerido")
			}
			b, _ := json.Marshal(map[string]any{"token": token, "validateProductId": withProductID})
			status, body, err := cl.do(http.MethodPost, "/v1/tokens/validate", b)
			if err != nil {
				return err
			}
			cl.print(status, body)
			if status != http.StatusOK {
				return fmt.Errorf("token inválido (status=%d)", status)
			}
			return nil
		},
	}
	validateCmd.Flags().StringVar(&token, "token", "", "Token a validar")
	validateCmd.Flags().BoolVar(&withProductID, "validate-product-id", false, "Pedir binding de product id")

	// ready
	readyCmd := &cobra.Command{
		Use:   "ready",
		Short: "Consultar readiness del nodo (GET /readyz)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do(http.MethodGet, "/readyz", nil)
			if err != nil {
				return err
			}
			cl.print(status, body)
			if status != http.StatusOK {
				return fmt.Errorf("nodo no listo: status=%d", status)
			}
			return nil
		},
	}

	// key
	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Ver la clave de firma activa (GET /v1/keys/active)",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do(http.MethodGet, "/v1/keys/active", nil)
			if err != nil {
				return err
			}
			if status == http.StatusNotFound {
				fmt.Println("sin clave activa")
				return nil
			}
			if status/100 != 2 {
				return fmt.Errorf("key fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}

	root.AddCommand(issueCmd, validateCmd, readyCmd, keyCmd)
	return root
}

// parseClaims convierte key=value en un mapa. Los valores que parsean como JSON se respetan.
func parseClaims(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(raw))
	for _, kv := range raw {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("claim inválido %q (esperado key=value)", kv)
		}
		var js any
		if json.Unmarshal([]byte(v), &js) == nil {
			out[k] = js
			continue
		}
		out[k] = v
	}
	return out, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
