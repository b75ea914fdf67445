package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/theakshaypant/calmirror/internal/account"
	"github.com/theakshaypant/calmirror/internal/adapter/google"
	"github.com/theakshaypant/calmirror/internal/adapter/outlook"
	"github.com/theakshaypant/calmirror/internal/config"
	"github.com/theakshaypant/calmirror/internal/token"
)

const (
	redirectPort = "8085"
	redirectURL  = "http://localhost:" + redirectPort + "/callback"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate an account with its calendar provider",
	Long: `Authenticate an account with its calendar provider using OAuth.

  1. Starts a local server to receive the OAuth callback
  2. Opens your browser to sign in with Google or Microsoft
  3. Saves the token to the account's token_file

Run it again when calmirror reports that the credentials were rejected.`,
	Args: cobra.NoArgs,
	RunE: runAuth,
}

func init() {
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	acc, err := cfg.Account(accountID)
	if err != nil {
		return err
	}

	oauthCfg, providerName, opts, err := oauthFor(acc)
	if err != nil {
		return err
	}
	oauthCfg.RedirectURL = redirectURL

	tok, err := getTokenViaLocalServer(cmd.Context(), oauthCfg, providerName, opts...)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	if err := token.Save(acc.TokenFile, tok); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Println("\n✅ Authentication successful!")
	fmt.Printf("📁 Token saved to %s\n", acc.TokenFile)
	fmt.Printf("\nYou can now run 'calmirror enable -a %s' to start mirroring.\n", acc.ID)
	return nil
}

func oauthFor(acc account.Config) (*oauth2.Config, string, []oauth2.AuthCodeOption, error) {
	switch acc.Provider {
	case google.ProviderID:
		c, err := google.OAuthConfig(acc.CredentialsFile)
		if err != nil {
			return nil, "", nil, err
		}
		return c, "Google", []oauth2.AuthCodeOption{oauth2.AccessTypeOffline, oauth2.ApprovalForce}, nil
	case outlook.ProviderID:
		return outlook.OAuthConfig(acc.ClientID, acc.TenantID), "Microsoft",
			[]oauth2.AuthCodeOption{oauth2.SetAuthURLParam("prompt", "consent")}, nil
	default:
		return nil, "", nil, fmt.Errorf("unknown provider: %s (supported: google, outlook)", acc.Provider)
	}
}

func getTokenViaLocalServer(ctx context.Context, cfg *oauth2.Config, providerName string, authOpts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errMsg := r.URL.Query().Get("error")
			http.Error(w, "Authorization failed: "+errMsg, http.StatusBadRequest)
			errChan <- fmt.Errorf("authorization failed: %s", errMsg)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `
			<!DOCTYPE html>
			<html>
			<head>
				<title>Authorization Successful</title>
				<style>
					body { font-family: -apple-system, sans-serif; display: flex;
					       justify-content: center; align-items: center; height: 100vh;
					       margin: 0; background: #1a1a1a; color: #fff; }
					.card { background: #2d2d2d; padding: 40px; border-radius: 12px;
					        box-shadow: 0 2px 10px rgba(0,0,0,0.3); text-align: center; }
					h1 { color: #4ade80; margin-bottom: 10px; }
					p { color: #a1a1aa; }
				</style>
			</head>
			<body>
				<div class="card">
					<h1>Authorization Successful</h1>
					<p>You can close this window and return to the terminal.</p>
				</div>
			</body>
			</html>
		`)

		codeChan <- code
	})

	server := &http.Server{Addr: ":" + redirectPort, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	defer server.Shutdown(context.Background())

	authURL := cfg.AuthCodeURL("state-token", authOpts...)

	fmt.Printf("🔐 Opening browser for %s authorization...\n", providerName)
	fmt.Println()

	if err := openBrowser(authURL); err != nil {
		fmt.Println("⚠️  Couldn't open browser automatically.")
		fmt.Println("   Please open this URL manually:")
		fmt.Println(authURL)
	}

	fmt.Println("⏳ Waiting for authorization...")

	var code string
	select {
	case code = <-codeChan:
	case err := <-errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("timeout waiting for authorization")
	}

	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return tok, nil
}

func openBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}

	return cmd.Start()
}
