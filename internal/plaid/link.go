package plaid

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
)

// Exchanger turns a Link public token into an access token and item id.
type Exchanger interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (string, string, error)
}

// LinkedAccount is an account the user selected in Link.
type LinkedAccount struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Mask string `json:"mask"`
}

// LinkResult is the outcome of a completed Link session.
type LinkResult struct {
	AccessToken     string
	ItemID          string
	InstitutionName string
	Accounts        []LinkedAccount
}

// LinkServer serves the Plaid Link page and receives the public token from it.
type LinkServer struct {
	exchanger Exchanger
	logger    *slog.Logger
	results   chan LinkResult
	errs      chan error
	linkToken string
	once      sync.Once
}

// NewLinkServer creates a server for one Link session.
func NewLinkServer(linkToken string, exchanger Exchanger, logger *slog.Logger) *LinkServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkServer{
		linkToken: linkToken,
		exchanger: exchanger,
		logger:    logger.With("component", "plaid_link"),
		results:   make(chan LinkResult, 1),
		errs:      make(chan error, 1),
	}
}

// Handler returns the HTTP routes: the Link page at / and the token exchange at /exchange.
func (s *LinkServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.servePage)
	mux.HandleFunc("POST /exchange", s.serveExchange)
	return mux
}

// Wait blocks until Link finishes, the exchange fails, or ctx ends.
func (s *LinkServer) Wait(ctx context.Context) (LinkResult, error) {
	select {
	case r := <-s.results:
		return r, nil
	case err := <-s.errs:
		return LinkResult{}, err
	case <-ctx.Done():
		return LinkResult{}, ctx.Err()
	}
}

func (s *LinkServer) servePage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := linkPage.Execute(w, struct{ Token string }{s.linkToken}); err != nil {
		s.logger.Error("Failed to render Link page", "error", err)
	}
}

type exchangeRequest struct {
	PublicToken string `json:"public_token"`
	Metadata    struct {
		Institution struct {
			Name string `json:"name"`
		} `json:"institution"`
		Accounts []LinkedAccount `json:"accounts"`
	} `json:"metadata"`
}

func (s *LinkServer) serveExchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PublicToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request"})
		return
	}

	accessToken, itemID, err := s.exchanger.ExchangePublicToken(r.Context(), req.PublicToken)
	if err != nil {
		s.finish(nil, err)
		writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "error": "failed to exchange token"})
		return
	}

	s.finish(&LinkResult{
		AccessToken:     accessToken,
		ItemID:          itemID,
		InstitutionName: req.Metadata.Institution.Name,
		Accounts:        req.Metadata.Accounts,
	}, nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// finish delivers the first outcome; later ones are logged and dropped.
func (s *LinkServer) finish(result *LinkResult, err error) {
	delivered := false
	s.once.Do(func() {
		delivered = true
		if err != nil {
			s.errs <- err
			return
		}
		s.results <- *result
	})
	if !delivered {
		s.logger.Warn("Ignoring repeated Link completion", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ErrLinkTimeout is returned by callers that give up waiting on Link.
var ErrLinkTimeout = errors.New("timed out waiting for Plaid Link")

var linkPage = template.Must(template.New("link").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>Connect your bank - AutoBudgeter</title>
  <script src="https://cdn.plaid.com/link/v2/stable/link-initialize.js"></script>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
           display: flex; align-items: center; justify-content: center; height: 100vh; margin: 0; }
    .error { color: #d32f2f; } .success { color: #388e3c; }
  </style>
</head>
<body>
  <div>
    <h1>Connect your bank account</h1>
    <button id="link-button">Connect</button>
    <div id="message"></div>
  </div>
  <script>
  const show = (cls, text) => { document.getElementById('message').innerHTML = '<p class="' + cls + '">' + text + '</p>'; };
  const handler = Plaid.create({
    token: {{.Token}},
    onSuccess: (public_token, metadata) => {
      show('success', 'Processing connection...');
      fetch('/exchange', {
        method: 'POST',
        headers: { 'Content-Type': 'application/json' },
        body: JSON.stringify({ public_token, metadata })
      })
      .then(r => r.json())
      .then(d => d.success ? show('success', 'Connected. You can close this tab.') : show('error', d.error || 'Connection failed'))
      .catch(e => show('error', 'Network error: ' + e));
    },
    onExit: (err) => { if (err != null) show('error', 'Connection canceled or failed.'); }
  });
  document.getElementById('link-button').onclick = () => handler.open();
  </script>
</body>
</html>
`))
