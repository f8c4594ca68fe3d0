package glacier

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/coldvault/vaultup/internal/logging"
)

// retryLogger adapts our logger to the retryablehttp.LeveledLogger
// interface. Only errors and warnings are surfaced; per-request chatter
// stays silent.
type retryLogger struct{}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	logging.Default().Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	logging.Default().Warn().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// newHTTPClient builds the HTTP client handed to the AWS SDK. Transport
// level hiccups (connection resets, 5xx) are absorbed here with a short
// retry budget; semantic retries per part remain the orchestrator's job.
func newHTTPClient() *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = &retryLogger{}
	return rc.StandardClient()
}
