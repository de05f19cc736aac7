package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

// newCheckTokenCmd verifies a token offline against a saved JWKS document.
// It is an operator tool and does not go through the service's key cache.
func newCheckTokenCmd() *cobra.Command {
	var jwksFile string

	cmd := &cobra.Command{
		Use:   "check-token [token]",
		Short: "Verify an RS256 token against a JWKS file and print its claims",
		Long:  "Verify an RS256 token against a JWKS file and print its claims. The token is read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(jwksFile)
			if err != nil {
				return fmt.Errorf("read jwks file: %w", err)
			}

			token, err := tokenArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			claims, err := checkToken(raw, token)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(claims)
		},
	}

	cmd.Flags().StringVar(&jwksFile, "jwks", "", "path to a JWKS JSON document")
	_ = cmd.MarkFlagRequired("jwks")
	return cmd
}

func tokenArg(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	b, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read token from stdin: %w", err)
	}
	token := strings.TrimSpace(string(b))
	if token == "" {
		return "", fmt.Errorf("no token given")
	}
	return token, nil
}

// checkToken verifies token against the JWKS document and returns its claims
func checkToken(jwksJSON []byte, token string) (jwt.MapClaims, error) {
	kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(jwksJSON))
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, kf.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token rejected: %w", err)
	}
	return claims, nil
}
