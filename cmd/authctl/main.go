// authctl es la CLI de administración del servicio (solo /api/v1/admin).
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
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-Key", c.APIKey)
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
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	var (
		baseURL = envOr("CFAUTH_ADMIN_URL", "http://localhost:8080")
		apiKey  = envOr("CFAUTH_ADMIN_KEY", "")
		out     = envOr("CFAUTH_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "authctl",
		Short: "CLI admin del servicio de autenticación (solo /api/v1/admin)",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if apiKey == "" {
				return fmt.Errorf("falta API key (flag --admin-key o env CFAUTH_ADMIN_KEY)")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "admin-url", baseURL, "URL base del servicio (env CFAUTH_ADMIN_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-key", apiKey, "API key admin (env CFAUTH_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "Formato de salida: json|text")

	cl := &client{BaseURL: baseURL, APIKey: apiKey, OutFormat: out, HTTP: &http.Client{Timeout: 30 * time.Second}}

	// tenants
	var tName, tSlug string
	createTenantCmd := &cobra.Command{
		Use:   "create",
		Short: "Crear un tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if tName == "" || tSlug == "" {
				return fmt.Errorf("--name y --slug son requeridos")
			}
			b, _ := json.Marshal(map[string]string{"name": tName, "slug": tSlug})
			status, body, err := cl.do("POST", "/api/v1/admin/tenants", b)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("create fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	createTenantCmd.Flags().StringVar(&tName, "name", "", "Nombre del tenant")
	createTenantCmd.Flags().StringVar(&tSlug, "slug", "", "Slug del tenant (ej. acme)")

	tenantsCmd := &cobra.Command{Use: "tenants", Short: "Operaciones sobre tenants"}
	tenantsCmd.AddCommand(createTenantCmd)

	// providers
	var pTenant string
	listProvidersCmd := &cobra.Command{
		Use:   "list",
		Short: "Listar configs SSO de un tenant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pTenant == "" {
				return fmt.Errorf("--tenant es requerido")
			}
			status, body, err := cl.do("GET", "/api/v1/admin/sso/providers?tenant="+pTenant, nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("list fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	listProvidersCmd.Flags().StringVar(&pTenant, "tenant", "", "Slug del tenant")

	var setFile string
	setProviderCmd := &cobra.Command{
		Use:   "set",
		Short: "Crear/actualizar una config de provider desde un JSON",
		Long:  "El JSON tiene el shape del PUT /api/v1/admin/sso/providers (tenant, type, client_id, client_secret, ...).",
		RunE: func(cmd *cobra.Command, args []string) error {
			if setFile == "" {
				return fmt.Errorf("--file es requerido")
			}
			b, err := os.ReadFile(setFile)
			if err != nil {
				return err
			}
			// validar que al menos es JSON antes de mandarlo
			var probe map[string]any
			if err := json.Unmarshal(b, &probe); err != nil {
				return fmt.Errorf("json inválido en %s: %w", setFile, err)
			}
			status, body, err := cl.do("PUT", "/api/v1/admin/sso/providers", b)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("set fallo: status=%d body=%s", status, string(body))
			}
			cl.print(status, body)
			return nil
		},
	}
	setProviderCmd.Flags().StringVar(&setFile, "file", "", "Fichero JSON con la config")

	providersCmd := &cobra.Command{Use: "providers", Short: "Configs SSO por tenant"}
	providersCmd.AddCommand(listProvidersCmd)
	providersCmd.AddCommand(setProviderCmd)

	root.AddCommand(tenantsCmd)
	root.AddCommand(providersCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
