package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/spf13/cobra"
	"github.com/tanq16/hanzo/internal/output"
	"github.com/tanq16/hanzo/internal/utils"
)

type cloneStreamWriter struct {
	disp *output.Manager
	id   int
}

func (w *cloneStreamWriter) Write(data []byte) (int, error) {
	message := strings.TrimSpace(string(data))
	if message != "" {
		w.disp.AddStreamLine(w.id, message)
	}
	return len(data), nil
}

func newGitCmd() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "git [REPO_URL] [DEST]",
		Short: "Clone a git repository",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			cloneURL, dest, err := parseGitTarget(args)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error: %v", err))
				os.Exit(1)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			disp := output.NewManager()
			disp.StartDisplay()
			id := disp.Register(dest)
			disp.SetMessage(id, fmt.Sprintf("Cloning %s", cloneURL))
			options := &git.CloneOptions{
				URL:      cloneURL,
				Progress: &cloneStreamWriter{disp: disp, id: id},
			}
			if depth > 0 {
				options.Depth = depth
			}
			_, err = git.PlainCloneContext(ctx, dest, false, options)
			if err != nil {
				disp.ReportError(id, err)
				disp.StopDisplay()
				os.Exit(1)
			}
			disp.Complete(id, fmt.Sprintf("Cloned %s", dest))
			disp.StopDisplay()
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Create a shallow clone truncated to this depth")
	return cmd
}

func parseGitTarget(args []string) (string, string, error) {
	link := strings.TrimSpace(args[0])
	link = strings.TrimSuffix(link, ".git")
	link = strings.TrimSuffix(link, "/")
	link = strings.TrimPrefix(link, "https://")
	link = strings.TrimPrefix(link, "http://")
	parts := strings.Split(link, "/")
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid git URL format, expected provider/owner/repo")
	}
	provider, owner, repo := parts[0], parts[1], parts[2]
	switch provider {
	case "github.com", "gitlab.com", "bitbucket.org":
	default:
		return "", "", fmt.Errorf("unsupported git provider: %s", provider)
	}
	cloneURL := fmt.Sprintf("https://%s/%s/%s", provider, owner, repo)
	dest := repo
	if len(args) > 1 {
		dest = args[1]
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = utils.RenewOutputPath(dest)
	}
	return cloneURL, dest, nil
}
