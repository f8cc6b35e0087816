package station

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/latoulicious/bunradio/pkg/network"
)

// ValidateStreamURL accepts absolute http(s) URLs only.
func ValidateStreamURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidStreamURL, raw)
	}
	return nil
}

// IsPlaylist reports whether raw points at a .pls file.
func IsPlaylist(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".pls")
}

// ResolvePlaylist returns the first File1= entry of a .pls playlist, or raw
// unchanged when it is not a playlist.
func ResolvePlaylist(ctx context.Context, fetcher Fetcher, raw string) (string, error) {
	if !IsPlaylist(raw) {
		return raw, nil
	}

	resp, err := fetcher.Fetch(ctx, network.Request{URL: raw})
	if err != nil {
		return "", fmt.Errorf("fetch playlist: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(resp.Body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || !strings.EqualFold(key, "file1") {
			continue
		}
		value = strings.TrimSpace(value)
		if err := ValidateStreamURL(value); err != nil {
			return "", err
		}
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrPlaylistEmpty, raw)
}
