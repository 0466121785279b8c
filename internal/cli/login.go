package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

const loginCallbackTimeout = 5 * time.Minute

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the fragment store",
	Long: `Sign in via the identity provider's browser flow.

A local callback server is started on the configured redirect port, the
authorization URL is printed for the browser, and the returned code is
exchanged for tokens. The refresh token is stored in the settings file;
the access token stays in memory only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Auth == nil {
			return fmt.Errorf("auth manager not initialized")
		}

		if Auth.TryRestore(cmd.Context()) {
			fmt.Println("already signed in")
			return nil
		}

		loginURL, err := Auth.LoginURL()
		if err != nil {
			return fmt.Errorf("starting login: %w", err)
		}

		redirect, err := url.Parse(Cfg.Auth.RedirectURL)
		if err != nil {
			return fmt.Errorf("parsing redirect url: %w", err)
		}
		listener, err := net.Listen("tcp", redirect.Host)
		if err != nil {
			return fmt.Errorf("binding callback port %s: %w", redirect.Host, err)
		}
		defer func() { _ = listener.Close() }()

		fmt.Println("Open this URL in your browser:")
		fmt.Println(loginURL)

		resultCh := make(chan error, 1)
		mux := http.NewServeMux()
		mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
			handled, err := Auth.HandleCallback(r.Context(), r.URL.String())
			if !handled {
				http.NotFound(w, r)
				return
			}
			if err != nil {
				http.Error(w, "Authentication failed. Check the terminal.", http.StatusBadRequest)
				resultCh <- err
				return
			}
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, "<html><body><h1>Signed in</h1><p>You may close this window.</p></body></html>")
			resultCh <- nil
		})

		server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				resultCh <- err
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Shutdown(shutCtx)
		}()

		select {
		case err := <-resultCh:
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}
		case <-time.After(loginCallbackTimeout):
			return fmt.Errorf("login timed out waiting for the browser callback")
		case <-cmd.Context().Done():
			return cmd.Context().Err()
		}

		fmt.Println("Signed in.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear stored tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Auth == nil {
			return fmt.Errorf("auth manager not initialized")
		}

		logoutURL := Auth.Logout()
		fmt.Println("Signed out.")
		if logoutURL != "" {
			fmt.Println("To end the provider session too, open:")
			fmt.Println(logoutURL)
		}
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Auth == nil {
			return fmt.Errorf("auth manager not initialized")
		}
		if !Auth.IsAuthenticated() && !Auth.TryRestore(cmd.Context()) {
			return fmt.Errorf("not signed in (run 'fragboard login')")
		}

		claims, err := Auth.Claims()
		if err != nil {
			fmt.Println("signed in (token carries no readable identity)")
			return nil
		}
		if claims.Name != "" {
			fmt.Printf("Name:    %s\n", claims.Name)
		}
		if claims.Email != "" {
			fmt.Printf("Email:   %s\n", claims.Email)
		}
		fmt.Printf("Subject: %s\n", claims.Subject)
		if !claims.Expiry.IsZero() {
			fmt.Printf("Expires: %s\n", claims.Expiry.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}
