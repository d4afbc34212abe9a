package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/splittest-go/internal/infrastructure/tenant"
	"github.com/spf13/cobra"
)

const (
	rebuildPath     = "/api/v1/admin/cache/rebuild"
	refreshTokenTTL = time.Minute
	refreshTimeout  = 30 * time.Second
)

// serverRefresh asks the running server to rebuild a tenant's active set
// after a command commits store writes. The CLI's own cache dies with the
// process, so only the server's rebuild makes the writes visible.
type serverRefresh struct {
	baseURL string
	as      string
	offline bool
	client  *http.Client
}

func (r *serverRefresh) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.baseURL, "server", os.Getenv("SPLITTEST_SERVER_URL"), "base URL of the running server (default http://localhost:$PORT)")
	cmd.Flags().StringVar(&r.as, "as", "", "staff username used to authorize the server rebuild")
	cmd.Flags().BoolVar(&r.offline, "offline", false, "do not contact a running server")
}

// validate runs before any store write so a misconfigured refresh fails early.
func (r *serverRefresh) validate() error {
	if r.offline || r.as != "" {
		return nil
	}
	return errors.New("--as <staff username> is required to refresh the running server; pass --offline when no server is running")
}

type rebuildResponse struct {
	Experiments int    `json:"experiments"`
	Cohorts     int    `json:"cohorts"`
	Duration    string `json:"duration"`
}

func (r *serverRefresh) run(ctx context.Context, out io.Writer, port string, tc *tenant.Context) error {
	if r.offline {
		fmt.Fprintf(out, "Server not contacted; restart it or POST %s to pick up the changes\n", rebuildPath)
		return nil
	}

	account, err := tc.UserRepo().FindByUsername(ctx, r.as)
	if err != nil {
		return err
	}
	if account == nil || !account.IsStaff {
		return fmt.Errorf("%q is not a staff account for tenant %s", r.as, tc.TenantID)
	}
	token, err := security.IssueToken(account.ID, true, tc.Config.JWTSecret, refreshTokenTTL)
	if err != nil {
		return err
	}

	base := strings.TrimRight(r.baseURL, "/")
	if base == "" {
		base = "http://localhost:" + port
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+rebuildPath, nil)
	if err != nil {
		return fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(tenant.TenantHeader, tc.TenantID)

	client := r.client
	if client == nil {
		client = &http.Client{Timeout: refreshTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			fmt.Fprintf(out, "No server reachable at %s; it warms from the store when it starts\n", base)
			return nil
		}
		return fmt.Errorf("failed to refresh server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server refresh failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var result rebuildResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode refresh response: %w", err)
	}
	fmt.Fprintf(out, "Server at %s rebuilt tenant %s: %d experiments, %d cohorts in %s\n",
		base, tc.TenantID, result.Experiments, result.Cohorts, result.Duration)
	return nil
}
