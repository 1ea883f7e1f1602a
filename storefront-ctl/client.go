package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prodbymtr/storefront/auth"
)

var errMissingSecret = errors.New("admin secret required: pass --secret or set ADMIN_JWT_SECRET")

type adminClient struct {
	flags *globalFlags
	http  *http.Client
}

func newAdminClient(flags *globalFlags) *adminClient {
	return &adminClient{flags: flags, http: &http.Client{Timeout: flags.timeout}}
}

// call performs the request and pretty-prints the JSON body. Admin routes get
// a freshly minted bearer token.
func (c *adminClient) call(cmd *cobra.Command, method, path string, admin bool) error {
	req, err := http.NewRequestWithContext(cmd.Context(), method, strings.TrimRight(c.flags.url, "/")+path, nil)
	if err != nil {
		return err
	}
	if admin {
		if c.flags.secret == "" {
			return errMissingSecret
		}
		token, err := auth.IssueToken(c.flags.secret, c.flags.subject, c.flags.tokenTTL)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") != nil {
		pretty.Reset()
		pretty.Write(body)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(pretty.String()))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}
