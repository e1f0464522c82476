package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tokens "github.com/afterdarksys/servicedesk/internal/auth"
	"github.com/afterdarksys/servicedesk/internal/cli/cliutil"
	"github.com/afterdarksys/servicedesk/internal/cli/commands/config"
)

// AuthCmd represents the auth command group
var AuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long: `Manage the access token used to call the service desk API.

Tokens are issued by your identity provider and stored in the CLI
configuration file. DESK_TOKEN overrides the stored token.

Examples:
  # Store a token
  desk auth set-token eyJhbGciOi...

  # Read the token from stdin
  pass show desk/token | desk auth set-token -

  # Check login status
  desk auth status

  # Logout
  desk auth logout`,
}

func init() {
	AuthCmd.AddCommand(setTokenCmd)
	AuthCmd.AddCommand(logoutCmd)
	AuthCmd.AddCommand(statusCmd)
}

var setTokenCmd = &cobra.Command{
	Use:   "set-token [token|-]",
	Short: "Store an access token",
	Args:  cobra.ExactArgs(1),
	Run:   runSetToken,
}

func runSetToken(cmd *cobra.Command, args []string) {
	token := args[0]
	if token == "-" {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			cliutil.Fail(fmt.Errorf("reading token: %w", err))
		}
		token = line
	}
	token = strings.TrimSpace(token)

	claims, err := tokens.Inspect(token)
	if err != nil {
		cliutil.Fail(err)
	}
	p, err := claims.Principal()
	if err != nil {
		cliutil.Fail(err)
	}

	viper.Set(cliutil.KeyToken, token)
	if err := config.Save(); err != nil {
		cliutil.Fail(fmt.Errorf("writing config: %w", err))
	}

	fmt.Printf("Token stored for %s (%s)\n", displayName(claims), p.Role)
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored token",
	Run:   runLogout,
}

func runLogout(cmd *cobra.Command, args []string) {
	if viper.GetString(cliutil.KeyToken) == "" {
		fmt.Println("Not logged in")
		return
	}

	viper.Set(cliutil.KeyToken, "")
	if err := config.Save(); err != nil {
		cliutil.Fail(fmt.Errorf("writing config: %w", err))
	}
	fmt.Println("Token removed. Goodbye!")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check authentication status",
	Long: `Show the user, role and expiry of the stored token.

The token is decoded locally; the server checks its signature on every
request.`,
	Run: runStatus,
}

type status struct {
	Authenticated bool       `json:"authenticated"`
	UserID        string     `json:"user_id,omitempty"`
	Name          string     `json:"name,omitempty"`
	Email         string     `json:"email,omitempty"`
	Role          string     `json:"role,omitempty"`
	PartnerID     string     `json:"partner_id,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	Expired       bool       `json:"expired"`
}

func runStatus(cmd *cobra.Command, args []string) {
	token := viper.GetString(cliutil.KeyToken)
	if token == "" {
		cliutil.Fail(cliutil.ErrNoToken)
	}
	claims, err := tokens.Inspect(token)
	if err != nil {
		cliutil.Fail(err)
	}

	st := status{
		Authenticated: true,
		UserID:        claims.Subject,
		Name:          claims.Name,
		Email:         claims.Email,
		Role:          string(claims.Role),
		PartnerID:     claims.PartnerID,
	}
	if claims.ExpiresAt != nil {
		exp := claims.ExpiresAt.Time
		st.ExpiresAt = &exp
		st.Expired = time.Now().After(exp)
		st.Authenticated = !st.Expired
	}

	cliutil.Print(st, func(out io.Writer) {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		state := "Authenticated"
		if st.Expired {
			state = "Expired"
		}
		fmt.Fprintf(w, "Status:\t%s\n", state)
		fmt.Fprintf(w, "User:\t%s\n", displayName(claims))
		fmt.Fprintf(w, "User ID:\t%s\n", st.UserID)
		fmt.Fprintf(w, "Role:\t%s\n", st.Role)
		if st.PartnerID != "" {
			fmt.Fprintf(w, "Partner:\t%s\n", st.PartnerID)
		}
		if st.ExpiresAt != nil {
			fmt.Fprintf(w, "Expires:\t%s\n", st.ExpiresAt.Local().Format(time.RFC1123))
		}
		w.Flush()
	})
}

func displayName(c *tokens.Claims) string {
	switch {
	case c.Name != "" && c.Email != "":
		return fmt.Sprintf("%s <%s>", c.Name, c.Email)
	case c.Email != "":
		return c.Email
	case c.Name != "":
		return c.Name
	}
	return c.Subject
}
