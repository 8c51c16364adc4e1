// Package gdrive provides a read-only producer.Source backed by a file
// stored in Google Drive, streamed from byte 0 with HTTP Range requests
// that resume at the current read offset.
package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// OAuth loads a Google Drive client restricted to drive.DriveReadonlyScope
// from a Google Developers Console client-credentials file and a
// previously obtained token file. Unlike a read/write client, it never
// prompts for a new token — a missing or unparsable token file is an
// error, since this package only ever reads. The token's expiry is not
// checked here.
func OAuth(clientCredFile, tokenFile string) (*drive.Service, error) {
	conf, err := loadOAuthConf(clientCredFile)
	if err != nil {
		return nil, err
	}
	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	service, err := drive.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("gdrive: new drive service: %w", err)
	}
	return service, nil
}

func loadOAuthConf(file string) (*oauth2.Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("gdrive: read client credentials: %w", err)
	}
	conf, err := google.ConfigFromJSON(b, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("gdrive: parse client credentials: %w", err)
	}
	return conf, nil
}

func loadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("gdrive: open token file: %w", err)
	}
	defer f.Close()

	tok := new(oauth2.Token)
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("gdrive: parse token file: %w", err)
	}
	return tok, nil
}
