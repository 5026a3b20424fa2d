package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"terra-eye/internal/toast"
)

// ShoutrrrSink sends alerts to every configured shoutrrr URL
type ShoutrrrSink struct {
	sender *router.ServiceRouter
	title  string
}

// NewShoutrrrSink builds one sender for all urls
func NewShoutrrrSink(urls []string, title string, timeout time.Duration) (*ShoutrrrSink, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one shoutrrr URL is required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("invalid shoutrrr URL: %w", err)
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(stdlog.New(io.Discard, "", 0))
	return &ShoutrrrSink{sender: sender, title: title}, nil
}

func (s *ShoutrrrSink) Name() string { return "shoutrrr" }

// Send delivers the alert; the router applies its own timeout
func (s *ShoutrrrSink) Send(_ context.Context, t *toast.Toast) error {
	params := stypes.Params{}
	if s.title != "" {
		params.SetTitle(s.title)
	}
	message := t.Message
	if t.Icon != "" {
		message = t.Icon + " " + message
	}
	for _, err := range s.sender.Send(message, &params) {
		if err != nil {
			return err
		}
	}
	return nil
}
