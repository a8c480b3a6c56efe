package fetcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFTPURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantHost string
		wantPath string
		wantErr  bool
	}{
		{
			name:     "standard ftp url",
			url:      "ftp://ftp.example.com/drops/returns/north.xlsx",
			wantHost: "ftp.example.com:21",
			wantPath: "/drops/returns/north.xlsx",
		},
		{
			name:     "ftp url with port",
			url:      "ftp://ftp.example.com:2121/drops/returns",
			wantHost: "ftp.example.com:2121",
			wantPath: "/drops/returns",
		},
		{
			name:     "directory url",
			url:      "ftp://ftp.example.com/submissions/2025/08",
			wantHost: "ftp.example.com:21",
			wantPath: "/submissions/2025/08",
		},
		{
			name:    "http scheme rejected",
			url:     "http://example.com/file.csv",
			wantErr: true,
		},
		{
			name:    "empty path",
			url:     "ftp://ftp.example.com",
			wantErr: true,
		},
		{
			name:    "invalid url",
			url:     "://bad",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, path, err := parseFTPURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantPath, path)
		})
	}
}

func TestNewFTPFetcher_Defaults(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{})
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, "anonymous", f.opts.User)
	assert.Equal(t, "anonymous@", f.opts.Password)
	assert.Equal(t, 4.0, f.opts.RatePerSec)
	require.NotNil(t, f.limiter)
}

func TestNewFTPFetcher_ExplicitCredentials(t *testing.T) {
	f := NewFTPFetcher(FTPOptions{User: "branch", Password: "secret", RatePerSec: 10})
	assert.Equal(t, "branch", f.opts.User)
	assert.Equal(t, "secret", f.opts.Password)
	assert.Equal(t, 10.0, f.opts.RatePerSec)
}
