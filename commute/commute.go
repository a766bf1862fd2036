package commute

import (
	"context"
	"errors"
	"strings"
	"time"

	"commute-annotator/internal/types"
	"commute-annotator/metrics"
	"commute-annotator/utils"
	"github.com/sirupsen/logrus"
)

// GenericFailure is shown once every retry of a transient failure is spent
const GenericFailure = "Could not calculate commute"

// permanentMarkers identify resolver errors that no retry can fix
var permanentMarkers = []string{
	"could not find",
	"could not geocode",
	"could not detect address",
	"not found",
	"no transit route",
	"no route",
	"zero_results",
	"outside",
	"service area",
	"not configured",
	"set your work address",
	"api key",
}

var errEmptyResponse = errors.New("empty response from resolver")

// Resolver turns an apartment address into a commute to the configured work address
type Resolver interface {
	Resolve(ctx context.Context, apartmentAddress string) (*types.ResolveResponse, error)
}

// Client resolves commutes with the retry policy: transient failures are
// retried with linearly growing backoff, permanent ones return at once.
type Client struct {
	resolver Resolver
	retries  int
	backoff  time.Duration
	logger   types.Logger
	tracer   *utils.Tracer
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClient creates a commute client
func NewClient(resolver Resolver, config *types.Config, logger types.Logger, tracer *utils.Tracer) *Client {
	return &Client{
		resolver: resolver,
		retries:  config.ResolveRetries,
		backoff:  config.RetryBackoff,
		logger:   logger,
		tracer:   tracer,
		sleep:    sleepContext,
	}
}

// IsPermanent reports whether a resolver error message means the address
// cannot be resolved or the configuration is missing.
func IsPermanent(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range permanentMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Resolve returns the commute for apartmentAddress. It never returns a
// pending result.
func (c *Client) Resolve(ctx context.Context, apartmentAddress string) types.CommuteResult {
	var lastErr error

	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := c.sleep(ctx, time.Duration(attempt)*c.backoff); err != nil {
			lastErr = err
			break
		}

		metrics.ResolveAttemptsTotal.Inc()
		resp, err := c.resolver.Resolve(ctx, apartmentAddress)
		c.tracer.Trace("resolve", logrus.Fields{
			"address":  apartmentAddress,
			"attempt":  attempt + 1,
			"response": resp,
			"error":    errString(err),
		})

		switch {
		case err != nil:
			lastErr = err
		case resp == nil:
			lastErr = errEmptyResponse
		case resp.Error != "":
			if IsPermanent(resp.Error) {
				metrics.ResolutionsTotal.WithLabelValues("permanent").Inc()
				return types.Failure(types.KindPermanent, resp.Error)
			}
			lastErr = errors.New(resp.Error)
		case resp.Morning == nil || strings.TrimSpace(resp.Morning.Text) == "":
			lastErr = errEmptyResponse
		default:
			metrics.ResolutionsTotal.WithLabelValues("success").Inc()
			return types.CommuteResult{
				Status:             types.StatusSuccess,
				DurationText:       resp.Morning.Text,
				Minutes:            resp.Morning.Minutes,
				ApartmentFormatted: resp.ApartmentFormatted,
				WorkFormatted:      resp.WorkFormatted,
			}
		}

		c.logger.Debugf("Commute attempt %d/%d for %q failed: %v", attempt+1, c.retries+1, apartmentAddress, utils.RedactText(lastErr.Error()))
		if ctx.Err() != nil {
			break
		}
	}

	metrics.ResolutionsTotal.WithLabelValues("transient").Inc()
	failure := types.Failure(types.KindTransient, GenericFailure)
	if lastErr != nil {
		failure.Cause = utils.RedactText(lastErr.Error())
	}
	c.logger.Warnf("Commute for %q failed after %d attempts: %s", apartmentAddress, c.retries+1, failure.Cause)
	return failure
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return utils.RedactText(err.Error())
}
