// Command goftp is a small FTP client CLI over the ClientFacade:
// connect, ls, get, put, cd, pwd.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/duskline/goftp"
)

var (
	configPath  string
	metricsAddr string
)

func loadClient() (*ftp.Client, error) {
	cfg, err := ftp.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("no host configured (set GOFTP_HOST or the config file's host key)")
	}

	opts, err := cfg.ToOptions()
	if err != nil {
		return nil, err
	}

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, ftp.WithMetrics(reg))
		go serveMetrics(metricsAddr, reg)
	}

	c, err := ftp.Dial(cfg.Addr(), opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Addr(), err)
	}
	if err := c.Login(cfg.User, cfg.Password); err != nil {
		c.Quit()
		return nil, fmt.Errorf("login: %w", err)
	}
	return c, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "goftp",
		Short: "goftp is an FTP client with SOCKS5 tunneling support",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus /metrics on (disabled if empty)")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.SetEnvPrefix("goftp")
	viper.AutomaticEnv()

	rootCmd.AddCommand(
		connectCmd(),
		lsCmd(),
		getCmd(),
		putCmd(),
		cdCmd(),
		pwdCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect and log in, reporting the server's greeting and features",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClient()
			if err != nil {
				return err
			}
			defer c.Quit()

			syst, err := c.Syst()
			if err != nil {
				return err
			}
			fmt.Printf("Connected (%s)\n", syst)

			features, err := c.Features()
			if err != nil {
				return err
			}
			for feat := range features {
				fmt.Println(" " + feat)
			}
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) == 1 {
				path = args[0]
			}

			c, err := loadClient()
			if err != nil {
				return err
			}
			defer c.Quit()

			entries, err := c.List(path)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Printf("%-6s %10d  %s\n", e.Type, e.Size, e.Name)
			}
			return nil
		},
	}
}

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote> <local>",
		Short: "Download a remote file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClient()
			if err != nil {
				return err
			}
			defer c.Quit()

			return c.DownloadFile(args[0], args[1])
		},
	}
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local> <remote>",
		Short: "Upload a local file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClient()
			if err != nil {
				return err
			}
			defer c.Quit()

			return c.UploadFile(args[0], args[1])
		},
	}
}

func cdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cd <path>",
		Short: "Change the remote working directory and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClient()
			if err != nil {
				return err
			}
			defer c.Quit()

			if err := c.ChangeDir(args[0]); err != nil {
				return err
			}
			pwd, err := c.CurrentDir()
			if err != nil {
				return err
			}
			fmt.Println(pwd)
			return nil
		},
	}
}

func pwdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pwd",
		Short: "Print the remote working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadClient()
			if err != nil {
				return err
			}
			defer c.Quit()

			pwd, err := c.CurrentDir()
			if err != nil {
				return err
			}
			fmt.Println(pwd)
			return nil
		},
	}
}
