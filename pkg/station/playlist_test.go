package station

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/bunradio/pkg/network"
)

func TestResolvePlaylist(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "not a playlist",
			url:  "http://radio.example/live.mp3",
			want: "http://radio.example/live.mp3",
		},
		{
			name: "first entry wins",
			url:  "http://radio.example/listen.pls",
			body: "[playlist]\nNumberOfEntries=2\nFile1=http://a.example:8000/stream\nFile2=http://b.example/stream\n",
			want: "http://a.example:8000/stream",
		},
		{
			name:    "tainted entry",
			url:     "http://radio.example/listen.PLS",
			body:    "[playlist]\nfile1=javascript:alert(1)\n",
			wantErr: ErrInvalidStreamURL,
		},
		{
			name:    "no entries",
			url:     "http://radio.example/listen.pls",
			body:    "[playlist]\nNumberOfEntries=0\n",
			wantErr: ErrPlaylistEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{resp: &network.Response{Status: http.StatusOK, Body: []byte(tt.body)}}

			got, err := ResolvePlaylist(context.Background(), f, tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateStreamURL(t *testing.T) {
	assert.NoError(t, ValidateStreamURL("https://radio.example/live"))
	assert.ErrorIs(t, ValidateStreamURL("ftp://radio.example/live"), ErrInvalidStreamURL)
	assert.ErrorIs(t, ValidateStreamURL("radio.example/live"), ErrInvalidStreamURL)
}
