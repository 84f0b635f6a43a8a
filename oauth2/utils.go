package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
)

// UserInfo is the decoded JSON document of a provider's user info endpoint.
type UserInfo map[string]any

// String returns a string field, formatting numeric ids without exponent.
func (u UserInfo) String(key string) string {
	switch v := u[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// Bool reports whether a field is true, either as a JSON boolean or as the
// string "true".
func (u UserInfo) Bool(key string) bool {
	switch v := u[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// FetchUserInfo GETs url with the token as bearer credentials.  An
// http.Client stored under oauth2.HTTPClient in ctx is used as transport.
func FetchUserInfo(ctx context.Context, url string, token *oauth2.Token) (UserInfo, error) {
	var userInfo UserInfo
	if err := getJSON(ctx, url, token, &userInfo); err != nil {
		return nil, err
	}
	return userInfo, nil
}

// EmailEntry is one entry of a GitHub style email list.
type EmailEntry struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchPrimaryEmail returns the primary address from the email list at url,
// or "" when it is not verified.
func FetchPrimaryEmail(ctx context.Context, url string, token *oauth2.Token) (string, error) {
	var emails []EmailEntry
	if err := getJSON(ctx, url, token, &emails); err != nil {
		return "", err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", nil
}

func getJSON(ctx context.Context, url string, token *oauth2.Token, out any) error {
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	response, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed getting %s: %w", url, err)
	}
	defer response.Body.Close()

	contents, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed read response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", url, response.StatusCode)
	}
	if err := json.Unmarshal(contents, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
