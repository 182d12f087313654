package authgate

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// EmailJobNotifier posts notification jobs to an external email server. The
// server owns templating, retry, and backoff; the gateway only enqueues.
type EmailJobNotifier struct {
	URL      string
	Username string
	Password string
	Client   *http.Client
	logger   Logger
}

// NewEmailJobNotifier returns a notifier targeting the email server's job
// endpoint, authenticated with basic auth.
func NewEmailJobNotifier(url, username, password string) *EmailJobNotifier {
	return &EmailJobNotifier{
		URL:      url,
		Username: username,
		Password: password,
		Client:   http.DefaultClient,
		logger:   defLogger{},
	}
}

func (n *EmailJobNotifier) WithLogger(logger Logger) *EmailJobNotifier {
	n.logger = logger
	return n
}

type emailJob struct {
	Type string       `json:"type"`
	Data emailJobData `json:"data"`
}

type emailJobData struct {
	EmailType NotificationKind `json:"emailType"`
	To        emailRecipient   `json:"to"`
	Variables map[string]any   `json:"variables,omitempty"`
}

type emailRecipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Send enqueues a single notification job. Callers dispatch it off the
// response path; a failure here is logged and goes no further.
func (n *EmailJobNotifier) Send(ctx context.Context, recipientName, recipientEmail string, kind NotificationKind, data map[string]any) error {
	job := emailJob{
		Type: "email",
		Data: emailJobData{
			EmailType: kind,
			To: emailRecipient{
				Name:  recipientName,
				Email: recipientEmail,
			},
			Variables: data,
		},
	}

	body, err := json.Marshal(job)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode email job")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL+"/job", bytes.NewReader(body))
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build email job request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(n.Username, n.Password)

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email job request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return goerrors.New("email server rejected job", goerrors.CategoryInternal).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}

	return nil
}

var _ Notifier = (*EmailJobNotifier)(nil)
