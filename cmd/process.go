package cmd

import (
	"context"
	"errors"
	"fmt"
	u "net/url"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/tanq16/hanzo/internal/identity"
	"github.com/tanq16/hanzo/internal/manager"
	"github.com/tanq16/hanzo/internal/output"
	"github.com/tanq16/hanzo/internal/session"
	"github.com/tanq16/hanzo/internal/transport"
	"github.com/tanq16/hanzo/internal/utils"
	"golang.org/x/sync/errgroup"
)

func buildManager(ctx context.Context) (*manager.Manager, error) {
	// Check if proxy URL contains auth
	if parsedProxy, err := u.Parse(proxyURL); err == nil && parsedProxy.User != nil && proxyUsername == "" {
		proxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			proxyPassword = password
		}
		// Remove auth from URL to send in clientConfig
		parsedProxy.User = nil
		proxyURL = parsedProxy.String()
	}
	client, err := utils.NewHTTPClient(utils.HTTPClientConfig{
		Timeout:       timeout,
		KATimeout:     kaTimeout,
		ProxyURL:      proxyURL,
		ProxyUsername: proxyUsername,
		ProxyPassword: proxyPassword,
		TokenFile:     tokenFile,
	})
	if err != nil {
		return nil, err
	}
	agent := userAgent
	switch agent {
	case "":
		agent = identity.UserAgent(Version)
	case "randomize":
		agent = utils.GetRandomUserAgent()
	}
	hdrs := utils.ParseHeaderArgs(headers)
	hdrs["User-Agent"] = agent
	mgr := manager.New(hdrs)
	httpTransport := transport.NewHTTP(client)
	mgr.RegisterTransport("http", httpTransport)
	mgr.RegisterTransport("https", httpTransport)
	if s3Transport, err := transport.NewS3(ctx, awsProfile); err == nil {
		mgr.RegisterTransport("s3", s3Transport)
	} else {
		utils.GetLogger("cmd").Warn().Err(err).Msg("S3 downloads unavailable")
	}
	return mgr, nil
}

// runDownloads drives a set of entries through the download manager with
// a live display. An interrupt cancels whatever is still in flight.
func runDownloads(entries []utils.DownloadEntry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	mgr, err := buildManager(ctx)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		mgr.CancelAll()
	}()
	disp := output.NewManager()
	disp.StartDisplay()
	var failures atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(max(workers, 1))
	for _, entry := range entries {
		g.Go(func() error {
			id := disp.Register(entry.OutputPath)
			disp.SetMessage(id, fmt.Sprintf("Downloading %s", entry.URL))
			d, err := mgr.Start(ctx, manager.StartRequest{
				URL:        entry.URL,
				OutputPath: entry.OutputPath,
				Resume:     entry.Resume,
				OnProgress: func(key string, read, total int64) {
					disp.Progress(id, read, total)
				},
			})
			if err != nil {
				failures.Add(1)
				disp.ReportError(id, err)
				return nil
			}
			<-d.Done()
			result, fired := d.Result()
			switch {
			case !fired:
				failures.Add(1)
				disp.ReportError(id, errors.New("canceled"))
			case result == session.Ok:
				disp.Complete(id, fmt.Sprintf("Downloaded %s", entry.OutputPath))
			default:
				failures.Add(1)
				disp.ReportError(id, fmt.Errorf("download ended with %s", result))
			}
			return nil
		})
	}
	g.Wait()
	mgr.Wait()
	disp.StopDisplay()
	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d of %d downloads failed", n, len(entries))
	}
	return nil
}
