// ABOUTME: Db command for one-shot aidb requests
// ABOUTME: Opens a session, runs one verb, logs out
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"

	"github.com/megamicros/megamicros-go/internal/aidb"
)

type dbOptions struct {
	host     string
	username string
	email    string
	password string
	timeout  time.Duration
	data     string
}

func newDbCmd() *cobra.Command {
	o := &dbOptions{}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Query the aidb database",
		Long: `Runs a single REST request against an aidb server. Opens a session,
performs the request, and logs out. Credentials default to the
MEGAMICROS_DB_HOST, MEGAMICROS_DB_USERNAME and MEGAMICROS_DB_PASSWORD
environment variables.`,
		Example: `  megamicros db get /labels/
  megamicros db post /labels/ --data '{"name": "siren"}'
  megamicros db delete /labels/42/ --host http://aidb.local:8002`,
	}

	cmd.PersistentFlags().StringVar(&o.host, "host", os.Getenv("MEGAMICROS_DB_HOST"), "aidb server URL")
	cmd.PersistentFlags().StringVar(&o.username, "username", os.Getenv("MEGAMICROS_DB_USERNAME"), "aidb account name")
	cmd.PersistentFlags().StringVar(&o.email, "email", os.Getenv("MEGAMICROS_DB_EMAIL"), "aidb account email")
	cmd.PersistentFlags().StringVar(&o.password, "password", os.Getenv("MEGAMICROS_DB_PASSWORD"), "aidb account password")
	cmd.PersistentFlags().DurationVar(&o.timeout, "timeout", aidb.DefaultTimeout, "request timeout")

	for _, verb := range []string{"get", "delete"} {
		cmd.AddCommand(newDbVerbCmd(verb, o, false))
	}
	for _, verb := range []string{"post", "put", "patch"} {
		sub := newDbVerbCmd(verb, o, true)
		sub.Flags().StringVar(&o.data, "data", "", "JSON request body")
		cmd.AddCommand(sub)
	}

	return cmd
}

func newDbVerbCmd(verb string, o *dbOptions, hasBody bool) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " ENDPOINT",
		Short: strings.ToUpper(verb) + " an aidb endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbVerb(cmd, strings.ToUpper(verb), args[0], o, hasBody)
		},
	}
}

func runDbVerb(cmd *cobra.Command, method, endpoint string, o *dbOptions, hasBody bool) error {
	log, err := buildLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	if o.host == "" {
		return fmt.Errorf("--host or MEGAMICROS_DB_HOST is required")
	}

	var body any
	if hasBody && o.data != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(o.data), &parsed); err != nil {
			return fmt.Errorf("--data is not valid JSON: %w", err)
		}
		body = parsed
	}

	session := aidb.NewSession(aidb.Config{
		Host:     o.host,
		Username: o.username,
		Email:    o.email,
		Password: o.password,
		Timeout:  o.timeout,
	}, log)

	ctx := cmd.Context()
	if err := session.Open(ctx); err != nil {
		return err
	}
	defer session.Close(ctx)

	var resp *resty.Response
	switch method {
	case "GET":
		resp, err = session.Get(ctx, endpoint)
	case "POST":
		resp, err = session.Post(ctx, endpoint, body)
	case "PUT":
		resp, err = session.Put(ctx, endpoint, body)
	case "PATCH":
		resp, err = session.Patch(ctx, endpoint, body)
	case "DELETE":
		resp, err = session.Delete(ctx, endpoint)
	}
	if err != nil {
		return err
	}

	printResponse(resp.Body())
	return nil
}

// printResponse pretty-prints JSON bodies and passes anything else
// through untouched.
func printResponse(body []byte) {
	if len(body) == 0 {
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(pretty.String())
}
