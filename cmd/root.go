package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/hanzo/internal/output"
	"github.com/tanq16/hanzo/internal/utils"
)

var (
	outputPath    string
	resume        bool
	workers       int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	tokenFile     string
	awsProfile    string
	headers       []string
	debug         bool
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "hanzo [URL]",
	Short:   "Hanzo is a resumable CLI download agent",
	Version: Version,
	Args:    cobra.MaximumNArgs(1),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
		link := args[0]
		if _, err := u.Parse(link); err != nil {
			output.PrintError("Invalid URL format")
			os.Exit(1)
		}
		dest := outputPath
		if dest == "" {
			dest = utils.InferOutputPath(link)
		}
		if _, err := os.Stat(dest); err == nil && !resume {
			dest = utils.RenewOutputPath(dest)
		}
		entries := []utils.DownloadEntry{{URL: link, OutputPath: dest, Resume: resume}}
		if err := runDownloads(entries); err != nil {
			fmt.Println()
			output.PrintError("Encountered failed operation(s)")
			os.Exit(1)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging() {
	utils.InitLogger(debug)
	if debug {
		logFile, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			utils.SetLogOutput(logFile)
		}
	}
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	rootCmd.Flags().BoolVarP(&resume, "resume", "r", false, "Resume from an existing temp file instead of starting over")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", 1, "Number of downloads to run in parallel")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Response header timeout (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", "", "User agent ('randomize' picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Path to JSON file with a bearer token to send on every request")
	rootCmd.PersistentFlags().StringVar(&awsProfile, "profile", "default", "AWS profile for s3:// downloads")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newGitCmd())
}
