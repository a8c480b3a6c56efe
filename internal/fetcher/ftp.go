package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout    time.Duration
	User       string
	Password   string
	RatePerSec float64 // transfers started per second
}

// FTPFetcher pulls branch submissions from an FTP drop.
type FTPFetcher struct {
	opts    FTPOptions
	limiter *rate.Limiter
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.User == "" {
		opts.User = "anonymous"
		opts.Password = "anonymous@"
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 4
	}
	return &FTPFetcher{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), 1),
	}
}

// spreadsheetExts lists the submission formats worth pulling. Must stay in
// step with what the ingest package can load.
var spreadsheetExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".csv":  true,
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}

	path = u.Path
	if path == "" {
		return "", "", eris.New("empty path in ftp url")
	}

	return host, path, nil
}

// Pull downloads submission files from an FTP URL into destDir and returns
// the local paths in sorted order. A URL whose path carries a spreadsheet
// extension fetches that single file; any other path is listed as a drop
// directory and every spreadsheet in it is fetched. Files that fail to
// transfer are logged and skipped so one bad upload never sinks the pull.
func (f *FTPFetcher) Pull(ctx context.Context, rawURL string, destDir string) ([]string, error) {
	host, remotePath, err := parseFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrap(err, "ftp: create dest dir")
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", remotePath))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(f.opts.User, f.opts.Password); err != nil {
		return nil, eris.Wrap(err, "ftp login")
	}

	remotes := []string{remotePath}
	if !spreadsheetExts[strings.ToLower(path.Ext(remotePath))] {
		remotes, err = listSubmissions(conn, remotePath)
		if err != nil {
			return nil, err
		}
	}

	var local []string
	for _, remote := range remotes {
		if err := f.limiter.Wait(ctx); err != nil {
			return local, eris.Wrap(err, "ftp: rate wait")
		}
		dest := filepath.Join(destDir, path.Base(remote))
		n, err := fetchFile(conn, remote, dest)
		if err != nil {
			zap.L().Warn("ftp: skipping file", zap.String("path", remote), zap.Error(err))
			continue
		}
		zap.L().Info("ftp: pulled file", zap.String("path", remote), zap.Int64("bytes", n))
		local = append(local, dest)
	}

	sort.Strings(local)
	return local, nil
}

// listSubmissions lists a drop directory and returns the full remote paths
// of spreadsheet files. Subdirectories and Excel lock files are skipped.
func listSubmissions(conn *ftp.ServerConn, dir string) ([]string, error) {
	entries, err := conn.List(dir)
	if err != nil {
		return nil, eris.Wrap(err, "ftp list")
	}

	var remotes []string
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if strings.HasPrefix(e.Name, "~$") || !spreadsheetExts[strings.ToLower(path.Ext(e.Name))] {
			continue
		}
		remotes = append(remotes, path.Join(dir, e.Name))
	}
	sort.Strings(remotes)
	return remotes, nil
}

// fetchFile retrieves one remote file to a local path. Returns bytes written.
// The response is closed before the next command goes out on the control
// connection.
func fetchFile(conn *ftp.ServerConn, remote, local string) (int64, error) {
	resp, err := conn.Retr(remote)
	if err != nil {
		return 0, eris.Wrap(err, "ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	file, err := os.Create(local)
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer file.Close() //nolint:errcheck

	n, err := io.Copy(file, resp)
	if err != nil {
		return n, eris.Wrap(err, "write file")
	}

	return n, nil
}
