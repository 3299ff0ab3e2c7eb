package cli

import (
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/keyrelay/internal/client/client"
	"github.com/dmitrijs2005/keyrelay/internal/client/config"
	"github.com/spf13/cobra"
)

type app struct {
	in  io.Reader
	out io.Writer

	configPath string
	server     string
	token      string
	timeout    time.Duration

	cfg *config.Config
	api *client.Client
}

// NewRootCmd builds the relayctl command tree reading from in and writing
// to out.
func NewRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	a := &app{in: in, out: out}

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Client for the keyrelay key directory and message relay",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "JSON config file")
	root.PersistentFlags().StringVar(&a.server, "server", "", "server base URL (e.g. http://127.0.0.1:8080)")
	root.PersistentFlags().StringVar(&a.token, "token", "", "session token")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "HTTP request timeout")

	root.AddCommand(a.listenCmd(), a.sendCmd(), a.chatCmd(), a.keysCmd())
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = a.server
	}
	if flags.Changed("token") {
		cfg.Token = a.token
	}
	if flags.Changed("timeout") {
		cfg.Timeout = a.timeout
	}

	if cfg.Token == "" {
		tok, err := GetToken(a.out)
		if err != nil {
			return err
		}
		cfg.Token = tok
	}

	a.cfg = cfg
	a.api = client.New(cfg.ServerURL, cfg.Token, client.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	return nil
}
