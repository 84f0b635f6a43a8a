package cookieauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxBodyBytes = 1 << 20

// requestBody is a decoded JSON or form request body.  Values keep their JSON
// types so handlers can tell a missing field from a mistyped one.
type requestBody map[string]any

func parseBody(r *http.Request) requestBody {
	body := requestBody{}
	if r.Body == nil {
		return body
	}
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return body
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				body[k] = v[0]
			}
		}
		return body
	}
	var data map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&data); err != nil || data == nil {
		return body
	}
	return data
}

func (b requestBody) stringField(key string) (string, bool) {
	v, ok := b[key].(string)
	return v, ok
}

func (b requestBody) boolField(key string) bool {
	switch v := b[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "on" || v == "1"
	}
	return false
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// driverContext keeps request values but drops cancellation: driver and
// trigger calls run to completion even if the client goes away.
func driverContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// padded runs fn and waits out the anti-enumeration delay concurrently, so
// the caller takes at least the delay whatever fn does.
func (e *handlerEnv) padded(fn func() error) error {
	delay := time.NewTimer(e.server.AntiEnumerationDelay)
	defer delay.Stop()
	err := fn()
	<-delay.C
	return err
}

// link builds an application URL carrying token in its fragment so that it
// never reaches server logs.
func (e *handlerEnv) link(path string, token string) string {
	return e.public.BaseURL + path + "#token=" + token
}

type signIn struct {
	userID     string
	provider   string
	status     AccountStatus
	rememberMe bool
	oauthToken *oauth2.Token
}

// signIn collects extra claims and sets the session cookies.  Nothing is
// written if it fails.
func (e *handlerEnv) signIn(ctx context.Context, w http.ResponseWriter, s signIn) error {
	extra, err := e.content.FetchAdditionalTokenContent(ctx, TokenContentRequest{
		UserID:     s.userID,
		OAuthToken: s.oauthToken,
	})
	if err != nil {
		return fmt.Errorf("fetching additional token content: %w", err)
	}
	cookies, err := e.cookies.SessionCookies(TokenData{
		UserID:        s.userID,
		Provider:      s.provider,
		AccountStatus: s.status,
		Extra:         extra,
	}, s.rememberMe)
	if err != nil {
		return err
	}
	setCookies(w, cookies...)
	return nil
}

func (e *handlerEnv) unexpected(w http.ResponseWriter, route Route, err error) {
	e.logger.Error("unexpected error", "route", string(route), "err", err)
	writeError(w, http.StatusInternalServerError, CodeUnexpectedError, err.Error())
}
